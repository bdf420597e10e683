// Package receipt suggests an expense amount from a photographed receipt.
package receipt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Suggestion is the amount read off a receipt. It is never stored.
type Suggestion struct {
	Amount float64 `json:"amount"`
	Raw    string  `json:"raw"`
	Text   string  `json:"-"`
}

type Scanner struct {
	lang string
}

func NewScanner() *Scanner { return &Scanner{lang: "eng"} }

// Scan decodes an image, runs OCR over the preprocessed version and extracts
// the best amount. Tesseract calls are not cancellable; ctx is only checked
// before they start.
func (s *Scanner) Scan(ctx context.Context, r io.Reader) (*Suggestion, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Preprocess(img), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(s.lang); err != nil {
		return nil, fmt.Errorf("ocr language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}

	amt, raw, err := BestAmount(text)
	if err != nil {
		slog.Debug("receipt without amount", "snippet", snippet(text, 140))
		return nil, err
	}
	return &Suggestion{Amount: amt, Raw: raw, Text: text}, nil
}

// snippet keeps the first max runes of s.
func snippet(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
