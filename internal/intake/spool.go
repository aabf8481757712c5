package intake

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/helpline/internal/message"
)

// Spool keeps uploads on disk for the duration of a pipeline run.
// File names are generated; nothing the client sends ends up in a path.
type Spool struct {
	dir string
	now func() time.Time
}

// NewSpool creates the spool directory if needed.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &Spool{dir: dir, now: time.Now}, nil
}

// Save writes the validated audio under an opaque name and records the path.
func (s *Spool) Save(va *message.ValidatedAudio) error {
	name := uuid.NewString() + va.Ext
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, va.Submission.Data, 0o600); err != nil {
		return fmt.Errorf("writing upload: %w", err)
	}
	va.Path = path
	return nil
}

// Remove deletes the spooled file, if any. It is safe to call more than once.
func (s *Spool) Remove(va *message.ValidatedAudio) {
	if va == nil || va.Path == "" {
		return
	}
	if err := os.Remove(va.Path); err != nil && !os.IsNotExist(err) {
		slog.Warn("removing spooled upload failed", "error", err)
	}
	va.Path = ""
}

// Sweep deletes spooled files older than maxAge and returns how many were removed.
func (s *Spool) Sweep(maxAge time.Duration) (int, error) {
	return SweepDir(s.dir, maxAge, s.now())
}

// SweepDir deletes regular files in dir whose modification time is older
// than maxAge relative to now.
func SweepDir(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
