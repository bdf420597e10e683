// Package expense is the query side of the expense tracker: bucketed
// listing, pagination counts, the leaderboard and product lifecycle.
package expense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spendtrack/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrUserNotFound = errors.New("user not found")
)

// View is the projection returned by List.
type View struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

// PageCount distinguishes "zero rows" from "count unavailable".
type PageCount struct {
	Total int64
	Known bool
	Err   error
}

// Pages returns the number of pages, or nil when the count is unknown.
func (p PageCount) Pages() *int {
	if !p.Known {
		return nil
	}
	n := TotalPages(p.Total, PageSize)
	return &n
}

// LeaderboardEntry ranks a user by the sum of their expenses.
type LeaderboardEntry struct {
	UserID       uint             `json:"userId"`
	Username     string           `json:"username"`
	IsPremium    bool             `json:"isPremium"`
	TotalExpense float64          `json:"totalExpense"`
	Products     []models.Product `json:"products"`
}

// NewProduct is the input of Create.
type NewProduct struct {
	UserID      uint
	Amount      float64
	Description string
	Category    string
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for bucket computation.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) bucket(ctx context.Context, userID uint, d Duration) *gorm.DB {
	start, end, _ := Window(d, s.now())
	return s.db.WithContext(ctx).Model(&models.Product{}).
		Where("user_id = ? AND created_at BETWEEN ? AND ?", userID, start, end)
}

// List returns one page of a user's expenses inside the named bucket.
// An unrecognised duration yields an empty slice, not an error.
func (s *Store) List(ctx context.Context, userID uint, duration string, offset, limit int) ([]View, error) {
	d, ok := ParseDuration(duration)
	if !ok {
		return []View{}, nil
	}
	var rows []models.Product
	if err := s.bucket(ctx, userID, d).Order("id").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s expenses: %w", d, err)
	}
	out := make([]View, 0, len(rows))
	for _, p := range rows {
		out = append(out, View{Amount: p.Amount, Description: p.Description, Category: p.Category})
	}
	return out, nil
}

// Count counts the rows List pages over, using the same bucket filter.
func (s *Store) Count(ctx context.Context, userID uint, duration string) PageCount {
	d, ok := ParseDuration(duration)
	if !ok {
		return PageCount{Known: true}
	}
	var n int64
	if err := s.bucket(ctx, userID, d).Count(&n).Error; err != nil {
		return PageCount{Err: fmt.Errorf("count %s expenses: %w", d, err)}
	}
	return PageCount{Total: n, Known: true}
}

// CountForUser counts all of a user's expenses regardless of date.
func (s *Store) CountForUser(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Product{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// ListAll returns a user's products inside a read transaction.
func (s *Store) ListAll(ctx context.Context, userID uint) ([]models.Product, error) {
	var out []models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Select("id", "user_id", "amount", "description", "category", "created_at").
			Where("user_id = ?", userID).Order("id").Find(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// Leaderboard ranks every user by total spend, highest first, ties broken by
// user id. Each entry carries that user's products ordered by amount.
func (s *Store) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	out := []LeaderboardEntry{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type row struct {
			ID        uint
			Name      string
			IsPremium bool
			Total     float64
		}
		var rows []row
		if err := tx.Model(&models.User{}).
			Select("users.id, users.name, users.is_premium, COALESCE(SUM(products.amount), 0) AS total").
			Joins("LEFT JOIN products ON products.user_id = users.id").
			Group("users.id, users.name, users.is_premium").
			Order("total DESC, users.id").
			Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		var products []models.Product
		if err := tx.Where("user_id IN ?", ids).Order("amount DESC, id").Find(&products).Error; err != nil {
			return err
		}
		byUser := make(map[uint][]models.Product, len(rows))
		for _, p := range products {
			byUser[p.UserID] = append(byUser[p.UserID], p)
		}
		for _, r := range rows {
			ps := byUser[r.ID]
			if ps == nil {
				ps = []models.Product{}
			}
			out = append(out, LeaderboardEntry{
				UserID:       r.ID,
				Username:     r.Name,
				IsPremium:    r.IsPremium,
				TotalExpense: r.Total,
				Products:     ps,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return out, nil
}

// Create stores a product, creating its user first when the id is unknown.
func (s *Store) Create(ctx context.Context, in NewProduct) (*models.Product, error) {
	p := models.Product{
		UserID:      in.UserID,
		Amount:      in.Amount,
		Description: in.Description,
		Category:    in.Category,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.First(&user, in.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{ID: in.UserID}
			err = tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		return tx.Create(&p).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

// Delete removes a product owned by userID. ErrNotFound leaves the table untouched.
func (s *Store) Delete(ctx context.Context, productID, userID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", productID, userID).Delete(&models.Product{})
	if res.Error != nil {
		return fmt.Errorf("delete product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// User loads a user without products.
func (s *Store) User(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &u, nil
}

// UserWithProducts loads a user and all of their products in insertion order.
func (s *Store) UserWithProducts(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&u, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &u, nil
}

// ForUser returns every product of an existing user in storage order.
func (s *Store) ForUser(ctx context.Context, userID uint) ([]models.Product, error) {
	if _, err := s.User(ctx, userID); err != nil {
		return nil, err
	}
	var out []models.Product
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("expenses for user %d: %w", userID, err)
	}
	return out, nil
}
