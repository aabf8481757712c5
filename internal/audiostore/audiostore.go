// Package audiostore keeps synthesized replies so clients can fetch them by
// generated name.
package audiostore

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned by Open for unknown or malformed names.
var ErrNotFound = errors.New("audio not found")

// namePattern matches generated object names only: "<uuid>.<ext>".
var namePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(mp3|wav|ogg)$`)

// ValidName reports whether name could have been produced by a Store.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Object describes a stored reply.
type Object struct {
	Name        string
	ContentType string

	// URL is where the client fetches the object. It is relative
	// ("/responses/<name>") unless a public base is configured.
	URL string
}

// Store persists synthesized audio.
type Store interface {
	// Name returns the backend identifier ("local", "s3").
	Name() string

	// Put stores data under a fresh generated name with the given extension.
	Put(ctx context.Context, data []byte, ext, contentType string) (*Object, error)

	// Open returns the object contents. Names failing ValidName yield ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, *Object, error)

	// Sweep removes objects older than maxAge and reports how many were removed.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error
}

// ContentTypeFor maps a stored extension to its MIME type.
func ContentTypeFor(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// ExtFor maps a synthesizer content type to a stored extension.
func ExtFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	case strings.Contains(contentType, "ogg"), strings.Contains(contentType, "opus"):
		return ".ogg"
	default:
		return ".wav"
	}
}

func relativeURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/responses/" + name
}
