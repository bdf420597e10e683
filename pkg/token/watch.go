package token

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReadKeyFile returns the trimmed contents of a key file.
func ReadKeyFile(path string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("key file %s is empty", path)
	}
	return b, nil
}

// WatchKeyFile rotates s to the file's contents whenever the file at path is
// written or replaced. It blocks until ctx is cancelled.
func WatchKeyFile(ctx context.Context, path string, s *Service) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// watch the directory: secret mounts and editors replace the file instead of writing it
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			secret, err := ReadKeyFile(path)
			if err != nil {
				slog.Warn("signing key reload failed", slog.String("path", path), slog.Any("error", err))
				continue
			}
			before := s.CurrentKeyID()
			if err := s.Rotate(secret); err != nil {
				slog.Warn("signing key rotation failed", slog.Any("error", err))
				continue
			}
			if after := s.CurrentKeyID(); after != before {
				slog.Info("signing key rotated", slog.String("kid", after))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("key file watch error", slog.Any("error", err))
		}
	}
}
