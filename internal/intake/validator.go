// Package intake guards the pipeline entrance: it confirms an upload is a
// plausible audio file before any provider is called, and keeps the
// transient copy that speech-to-text backends read from.
package intake

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
)

// allowedTypes maps each accepted extension to the sniffed MIME types that
// may back it. Containers sniffed as a parent type (ogg, mp4) are listed too,
// as is the QuickTime brand some phone recorders write into .m4a files.
var allowedTypes = map[string][]string{
	".wav":  {"audio/wav", "audio/x-wav", "audio/vnd.wave", "audio/wave"},
	".mp3":  {"audio/mpeg", "audio/mp3"},
	".mp4":  {"video/mp4", "audio/mp4", "audio/x-m4a", "video/quicktime"},
	".m4a":  {"audio/x-m4a", "audio/mp4", "video/mp4", "video/quicktime"},
	".flac": {"audio/flac", "audio/x-flac"},
	".ogg":  {"audio/ogg", "application/ogg", "audio/opus", "video/ogg"},
}

// SupportedFormats returns the accepted extensions without dots, sorted.
func SupportedFormats() []string {
	out := make([]string, 0, len(allowedTypes))
	for ext := range allowedTypes {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(out)
	return out
}

// Validator checks size, extension and sniffed content type of uploads.
type Validator struct {
	maxBytes int64
}

// NewValidator creates a validator with the given size ceiling.
func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes returns the configured size ceiling.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// Validate accepts or rejects a submission. It performs no I/O.
func (v *Validator) Validate(sub *message.AudioSubmission) outcome.Result[*message.ValidatedAudio] {
	if sub == nil || sub.Filename == "" {
		return outcome.Fail[*message.ValidatedAudio](outcome.KindInvalidInput, outcome.ReasonMissingFile,
			"no audio file provided", nil)
	}

	size := sub.Size
	if int64(len(sub.Data)) > size {
		size = int64(len(sub.Data))
	}
	if size == 0 {
		return outcome.Fail[*message.ValidatedAudio](outcome.KindInvalidInput, outcome.ReasonEmpty,
			"audio file is empty", nil)
	}
	if size > v.maxBytes {
		return outcome.FromFailure[*message.ValidatedAudio](TooLarge(v.maxBytes))
	}

	ext := strings.ToLower(filepath.Ext(sub.Filename))
	accepted, ok := allowedTypes[ext]
	if !ok {
		return outcome.Fail[*message.ValidatedAudio](outcome.KindInvalidInput, outcome.ReasonUnsupportedFormat,
			"file type not allowed", nil)
	}

	sniffed := mimetype.Detect(sub.Data)
	mime, ok := matchType(sniffed, accepted)
	if !ok {
		return outcome.Fail[*message.ValidatedAudio](outcome.KindInvalidInput, outcome.ReasonUnsupportedFormat,
			"file content is not a supported audio format", nil)
	}

	return outcome.OK(&message.ValidatedAudio{
		Submission: sub,
		MIMEType:   mime,
		Ext:        ext,
	})
}

// TooLarge is the failure for an upload over maxBytes. Transports that cut the
// body off early report it too.
func TooLarge(maxBytes int64) *outcome.Failure {
	return outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonTooLarge,
		fmt.Sprintf("file too large, maximum size is %s", humanBytes(maxBytes)), nil)
}

// matchType walks the detected type and its parents looking for an accepted MIME.
func matchType(detected *mimetype.MIME, accepted []string) (string, bool) {
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range accepted {
			if m.Is(want) {
				return m.String(), true
			}
		}
	}
	return "", false
}

func humanBytes(n int64) string {
	const mb = 1 << 20
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
