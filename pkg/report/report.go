// Package report renders a user's expenses as a plain-text download.
package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"spendtrack/models"
	"spendtrack/pkg/expense"
)

var ErrUserNotFound = expense.ErrUserNotFound

// Source yields every expense of an existing user, or ErrUserNotFound.
type Source interface {
	ForUser(ctx context.Context, userID uint) ([]models.Product, error)
}

type Generator struct {
	src Source
}

func NewGenerator(src Source) *Generator {
	return &Generator{src: src}
}

// Generate renders userID's expenses in storage order.
func (g *Generator) Generate(ctx context.Context, userID uint) ([]byte, error) {
	products, err := g.src.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Render(products), nil
}

// Render formats one "description: $amount" line per expense.
func Render(products []models.Product) []byte {
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, p.Description+": $"+strconv.FormatFloat(p.Amount, 'f', -1, 64))
	}
	return []byte(strings.Join(lines, "\n"))
}

// FileName is the name the report is downloaded as.
func FileName(userID uint) string {
	return fmt.Sprintf("expenses_%d.txt", userID)
}

// Artifact is a staged report file on disk. Close removes it.
type Artifact struct {
	Path string
	Name string
}

// Stage writes content to a fresh temporary file under dir.
func Stage(dir string, userID uint, content []byte) (*Artifact, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report dir: %w", err)
	}
	f, err := os.CreateTemp(dir, fmt.Sprintf("expenses_%d_*.txt", userID))
	if err != nil {
		return nil, fmt.Errorf("stage report: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("close report: %w", err)
	}
	return &Artifact{Path: f.Name(), Name: FileName(userID)}, nil
}

// Close removes the staged file. Removing an already-removed file is not an error.
func (a *Artifact) Close() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// WithArtifact stages content, hands it to fn and removes it afterwards,
// including when fn fails or panics.
func WithArtifact(dir string, userID uint, content []byte, fn func(*Artifact) error) (err error) {
	a, err := Stage(dir, userID, content)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("remove staged report: %w", cerr)
		}
	}()
	return fn(a)
}
