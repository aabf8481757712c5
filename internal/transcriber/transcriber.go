// Package transcriber defines the speech-to-text capability and the gateway
// the orchestrator calls it through.
//
// Exactly one backend is configured per deployment (whisper, openai or
// google); there is no runtime fallback chain for transcription.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
)

// Options controls a single transcription call.
type Options struct {
	// Language is the ISO-639-1 hint (e.g. "tr"). Empty lets the provider detect it.
	Language string

	// SampleRate and Channels describe the PCM format a provider requires when
	// it cannot take the uploaded container as-is.
	SampleRate int
	Channels   int
}

// Result holds the text and language returned by a provider.
type Result struct {
	Text     string
	Language string
}

// Transcriber is the interface every speech-to-text backend implements.
type Transcriber interface {
	// Name returns the backend identifier (e.g. "whisper", "openai", "google").
	Name() string

	// Transcribe converts validated audio to text. Returning an error wrapping an
	// outcome InvalidInput failure marks the audio itself as unusable.
	Transcribe(ctx context.Context, audio *message.ValidatedAudio, opts Options) (*Result, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Gateway wraps one Transcriber behind the typed outcome contract.
type Gateway struct {
	backend    Transcriber
	timeout    time.Duration
	language   string
	sampleRate int
	channels   int
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Timeout    time.Duration
	Language   string // default hint when the request has none
	SampleRate int
	Channels   int
}

// NewGateway creates a gateway around backend.
func NewGateway(backend Transcriber, cfg GatewayConfig) *Gateway {
	return &Gateway{
		backend:    backend,
		timeout:    cfg.Timeout,
		language:   cfg.Language,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
	}
}

// Backend returns the wrapped backend name.
func (g *Gateway) Backend() string { return g.backend.Name() }

// Transcribe runs the backend with a bounded timeout and converts every
// error, including a panic, into a Failure.
func (g *Gateway) Transcribe(ctx context.Context, audio *message.ValidatedAudio, languageHint string) (res outcome.Result[message.Transcript]) {
	lang := languageHint
	if lang == "" {
		lang = g.language
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("transcriber panicked", "backend", g.backend.Name(), "panic", r)
			res = outcome.Fail[message.Transcript](outcome.KindInternalFailure, outcome.ReasonNone,
				"transcription failed", fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	out, err := g.backend.Transcribe(ctx, audio, Options{
		Language:   lang,
		SampleRate: g.sampleRate,
		Channels:   g.channels,
	})
	if err != nil {
		if f, ok := outcome.AsFailure(err); ok && f.Kind == outcome.KindInvalidInput {
			return outcome.FromFailure[message.Transcript](f)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return outcome.Fail[message.Transcript](outcome.KindInternalFailure, outcome.ReasonCanceled,
				"request canceled", err)
		}
		msg := "speech-to-text provider unavailable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "speech-to-text provider timed out"
		}
		return outcome.Fail[message.Transcript](outcome.KindProviderUnavailable, outcome.ReasonNone, msg, err)
	}

	if out.Language != "" {
		lang = out.Language
	}
	slog.Debug("transcription complete",
		"backend", g.backend.Name(),
		"text_length", len(out.Text),
		"language", lang,
		"duration", time.Since(start))

	return outcome.OK(message.Transcript{
		Text:     out.Text,
		Language: lang,
		Source:   audio.Submission.Filename,
	})
}

// Close closes the backend.
func (g *Gateway) Close() error { return g.backend.Close() }
