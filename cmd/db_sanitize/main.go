// Command db_sanitize empties the expense tracker's tables. Nothing is
// truncated unless both -dry-run=false and -yes are given.
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

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// appTables lists the tables this tool may touch, children first.
var appTables = []string{"orders", "products", "users"}

// cascades names tables emptied implicitly by truncating the key table.
var cascades = map[string][]string{
	"users": {"products"},
}

type database interface {
	PresentTables(ctx context.Context, names []string) (map[string]bool, error)
	Exec(ctx context.Context, stmt string) error
}

type pgDatabase struct{ db *gorm.DB }

func (p pgDatabase) PresentTables(ctx context.Context, names []string) (map[string]bool, error) {
	var found []string
	err := p.db.WithContext(ctx).
		Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename IN ?", names).
		Scan(&found).Error
	if err != nil {
		return nil, fmt.Errorf("query pg_tables: %w", err)
	}
	out := make(map[string]bool, len(found))
	for _, n := range found {
		out[n] = true
	}
	return out, nil
}

func (p pgDatabase) Exec(ctx context.Context, stmt string) error {
	return p.db.WithContext(ctx).Exec(stmt).Error
}

func main() {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN must be set to run db_sanitize")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := run(ctx, os.Args[1:], pgDatabase{db: gdb}, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, db database, out io.Writer) error {
	fs := flag.NewFlagSet("db_sanitize", flag.ContinueOnError)
	fs.SetOutput(out)
	dryRun := fs.Bool("dry-run", true, "show what would be truncated without changing anything")
	yes := fs.Bool("yes", false, "confirm the truncate")
	tables := fs.String("tables", strings.Join(appTables, ","), "comma-separated subset of "+strings.Join(appTables, ", "))
	if err := fs.Parse(args); err != nil {
		return err
	}

	requested, err := selectTables(*tables)
	if err != nil {
		return err
	}
	present, err := db.PresentTables(ctx, requested)
	if err != nil {
		return err
	}
	p := newPlan(requested, present)
	if len(p.Tables) == 0 {
		fmt.Fprintln(out, "none of the requested tables exist; nothing to do")
		return nil
	}

	fmt.Fprintf(out, "would truncate: %s\n", strings.Join(p.Tables, ", "))
	if len(p.Implied) > 0 {
		fmt.Fprintf(out, "also emptied by cascade: %s\n", strings.Join(p.Implied, ", "))
	}
	switch {
	case *dryRun:
		fmt.Fprintln(out, "dry run; pass -dry-run=false -yes to execute")
		return nil
	case !*yes:
		fmt.Fprintln(out, "refusing without -yes")
		return nil
	}

	stmt := p.statement()
	log.Printf("executing: %s", stmt)
	if err := db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	fmt.Fprintln(out, "truncate completed")
	return nil
}

// selectTables parses the -tables list, accepting only app tables.
func selectTables(list string) ([]string, error) {
	known := make(map[string]bool, len(appTables))
	for _, t := range appTables {
		known[t] = true
	}
	want := map[string]bool{}
	for _, p := range strings.Split(list, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !known[p] {
			return nil, fmt.Errorf("unknown table %q (allowed: %s)", p, strings.Join(appTables, ", "))
		}
		want[p] = true
	}
	var out []string
	for _, t := range appTables {
		if want[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tables selected")
	}
	return out, nil
}

type plan struct {
	Tables  []string
	Implied []string
}

func newPlan(requested []string, present map[string]bool) plan {
	var p plan
	chosen := map[string]bool{}
	for _, t := range requested {
		if present[t] {
			p.Tables = append(p.Tables, t)
			chosen[t] = true
		}
	}
	for _, t := range p.Tables {
		for _, c := range cascades[t] {
			if present[c] && !chosen[c] {
				p.Implied = append(p.Implied, c)
				chosen[c] = true
			}
		}
	}
	return p
}

func (p plan) statement() string {
	quoted := make([]string, 0, len(p.Tables))
	for _, t := range p.Tables {
		quoted = append(quoted, pq.QuoteIdentifier(t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}
