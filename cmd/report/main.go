// Command report prints a month-bounded expense summary for one user,
// querying postgres directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

type categoryTotal struct {
	Category string
	Total    float64
	Count    int64
}

type summary struct {
	UserID     uint64
	Name       string
	Month      string
	Total      float64
	Count      int64
	Categories []categoryTotal
}

type row struct {
	ID          int64
	Amount      float64
	Description string
	Category    string
	CreatedAt   time.Time
}

func main() {
	userID := flag.Uint64("user", 0, "user id")
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month as YYYY-MM (UTC)")
	list := flag.Bool("list", false, "list every expense of the month")
	flag.Parse()
	if *userID == 0 {
		log.Fatal("usage: report -user <id> [-month YYYY-MM] [-list]")
	}
	start, end, err := monthRange(*month)
	if err != nil {
		log.Fatal(err)
	}

	_ = godotenv.Load()
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		log.Fatal("DB_DSN not set in env")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := connect(ctx, dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	s, err := loadSummary(ctx, pool, *userID, start, end)
	if err != nil {
		log.Fatal(err)
	}
	s.Month = *month
	printSummary(os.Stdout, s)

	if *list {
		rows, err := loadRows(ctx, pool, *userID, start, end)
		if err != nil {
			log.Fatal(err)
		}
		printRows(os.Stdout, rows)
	}
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DB_DSN: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// monthRange returns [first of month, first of next month) in UTC.
func monthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", month)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

func loadSummary(ctx context.Context, pool *pgxpool.Pool, userID uint64, start, end time.Time) (*summary, error) {
	s := &summary{UserID: userID}
	if err := pool.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&s.Name); err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	err := pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM products WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, start, end).Scan(&s.Total, &s.Count)
	if err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}
	rows, err := pool.Query(ctx,
		`SELECT category, SUM(amount), COUNT(*) FROM products
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY category ORDER BY 2 DESC, category`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c categoryTotal
		if err := rows.Scan(&c.Category, &c.Total, &c.Count); err != nil {
			return nil, err
		}
		s.Categories = append(s.Categories, c)
	}
	return s, rows.Err()
}

func loadRows(ctx context.Context, pool *pgxpool.Pool, userID uint64, start, end time.Time) ([]row, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, amount, description, category, created_at FROM products
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3 ORDER BY id`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	defer rows.Close()
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Amount, &r.Description, &r.Category, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func printSummary(w io.Writer, s *summary) {
	name := s.Name
	if name == "" {
		name = "N/A"
	}
	fmt.Fprintf(w, "Report for user=%d (%s) month=%s (UTC):\n", s.UserID, name, s.Month)
	fmt.Fprintf(w, "  records=%d total_amount=%.2f\n", s.Count, s.Total)
	for _, c := range s.Categories {
		cat := c.Category
		if cat == "" {
			cat = "(none)"
		}
		fmt.Fprintf(w, "  %-16s %10.2f  (%d)\n", cat, c.Total, c.Count)
	}
}

func printRows(w io.Writer, rows []row) {
	for _, r := range rows {
		fmt.Fprintf(w, "%d|%s|%s|%.2f|%s\n", r.ID, r.Description, r.Category, r.Amount, r.CreatedAt.UTC().Format(time.RFC3339))
	}
}
