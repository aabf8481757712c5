package audiostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Local stores objects in a directory on disk.
type Local struct {
	dir     string
	baseURL string
	now     func() time.Time
}

// NewLocal creates the directory if needed. baseURL prefixes returned URLs
// and may be empty for relative URLs.
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating response dir: %w", err)
	}
	return &Local{dir: dir, baseURL: baseURL, now: time.Now}, nil
}

// Name returns the backend identifier.
func (l *Local) Name() string { return "local" }

// Put writes data under a fresh uuid name.
func (l *Local) Put(_ context.Context, data []byte, ext, contentType string) (*Object, error) {
	name := uuid.NewString() + ext
	if !ValidName(name) {
		return nil, fmt.Errorf("unsupported audio extension %q", ext)
	}
	tmp := filepath.Join(l.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing response audio: %w", err)
	}
	// Rename so readers never see a partial file.
	if err := os.Rename(tmp, filepath.Join(l.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("publishing response audio: %w", err)
	}
	return &Object{Name: name, ContentType: contentType, URL: relativeURL(l.baseURL, name)}, nil
}

// Open opens a stored object by name.
func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, *Object, error) {
	if !ValidName(name) {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("opening response audio: %w", err)
	}
	return f, &Object{
		Name:        name,
		ContentType: ContentTypeFor(filepath.Ext(name)),
		URL:         relativeURL(l.baseURL, name),
	}, nil
}

// Sweep deletes generated files older than maxAge. Files with other names are left alone.
func (l *Local) Sweep(_ context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", l.dir, err)
	}
	now := l.now()
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !ValidName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Ping checks that the directory still exists.
func (l *Local) Ping(context.Context) error {
	info, err := os.Stat(l.dir)
	if err != nil {
		return fmt.Errorf("response dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("response dir %s is not a directory", l.dir)
	}
	return nil
}
