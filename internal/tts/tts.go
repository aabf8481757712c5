// Package tts defines the interface for text-to-speech synthesis and the
// gateway that turns an answer into a fetchable voice reply.
//
// Synthesis is optional: when every provider fails the gateway reports a
// failure and the caller falls back to a text-only response.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadzzz/helpline/internal/audiostore"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
)

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "tr", "en") to select the voice.
	Language string

	// Voice overrides automatic language-based voice selection.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the backend identifier (e.g. "elevenlabs", "openai", "piper").
	Name() string

	// Synthesize generates audio for text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the encoded audio (MP3 or WAV).
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/mpeg").
	ContentType string

	// SampleRate is the audio sample rate in Hz, when known.
	SampleRate int

	// Channels is the number of audio channels, when known.
	Channels int
}

// Gateway tries synthesizers in order and stores the first result.
type Gateway struct {
	providers []Synthesizer
	store     audiostore.Store
	timeout   time.Duration
}

// NewGateway creates a synthesis gateway.
func NewGateway(providers []Synthesizer, store audiostore.Store, timeout time.Duration) *Gateway {
	return &Gateway{providers: providers, store: store, timeout: timeout}
}

// Providers lists the synthesizers in the order they are tried.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Synthesize produces and stores a voice reply.
func (g *Gateway) Synthesize(ctx context.Context, text, language string) outcome.Result[message.AudioRef] {
	if strings.TrimSpace(text) == "" {
		return outcome.Fail[message.AudioRef](outcome.KindInvalidInput, outcome.ReasonEmpty, "nothing to synthesize", nil)
	}
	if len(g.providers) == 0 {
		return outcome.Fail[message.AudioRef](outcome.KindProviderUnavailable, outcome.ReasonNone,
			"no text-to-speech provider configured", nil)
	}

	var lastErr error
	for _, p := range g.providers {
		if err := ctx.Err(); err != nil {
			return outcome.Fail[message.AudioRef](outcome.KindInternalFailure, outcome.ReasonCanceled, "request canceled", err)
		}

		res, err := g.call(ctx, p, text, SynthesizeOpts{Language: language})
		if err != nil {
			lastErr = err
			slog.Warn("tts provider failed, trying next", "provider", p.Name(), "error", err)
			continue
		}

		contentType := res.ContentType
		if contentType == "" {
			contentType = "audio/mpeg"
		}
		obj, err := g.store.Put(ctx, res.Audio, audiostore.ExtFor(contentType), contentType)
		if err != nil {
			return outcome.Fail[message.AudioRef](outcome.KindInternalFailure, outcome.ReasonNone,
				"could not store synthesized audio", err)
		}

		slog.Debug("tts complete", "provider", p.Name(), "bytes", len(res.Audio), "name", obj.Name)
		return outcome.OK(message.AudioRef{
			URL:         obj.URL,
			Name:        obj.Name,
			ContentType: obj.ContentType,
			Provider:    p.Name(),
		})
	}

	msg := "text-to-speech providers unavailable"
	if errors.Is(lastErr, context.DeadlineExceeded) {
		msg = "text-to-speech providers timed out"
	}
	return outcome.Fail[message.AudioRef](outcome.KindProviderUnavailable, outcome.ReasonNone, msg, lastErr)
}

func (g *Gateway) call(ctx context.Context, p Synthesizer, text string, opts SynthesizeOpts) (res *SynthesizeResult, err error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("synthesizer %s panicked: %v", p.Name(), r)
		}
	}()

	res, err = p.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Audio) == 0 {
		return nil, errors.New("empty audio")
	}
	return res, nil
}

// Close closes every synthesizer.
func (g *Gateway) Close() error {
	var errs []error
	for _, p := range g.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
