// Package openai implements the Transcriber interface using OpenAI's audio
// transcription API (Whisper / gpt-4o-transcribe) or any compatible service.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/transcriber"
)

// Transcriber uses the OpenAI transcription endpoint.
type Transcriber struct {
	client *goopenai.Client
	model  string
}

// New creates an OpenAI transcriber from config.
func New(cfg config.OpenAISTTConfig) *Transcriber {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Transcriber{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "openai" }

// Transcribe sends the audio to the transcription API.
func (t *Transcriber) Transcribe(ctx context.Context, audio *message.ValidatedAudio, opts transcriber.Options) (*transcriber.Result, error) {
	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    t.model,
		FilePath: "audio" + audio.Ext,
		Reader:   bytes.NewReader(audio.Submission.Data),
		Language: opts.Language,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	return &transcriber.Result{
		Text:     resp.Text,
		Language: normalizeLanguage(resp.Language),
	}, nil
}

// Close is a no-op for the OpenAI transcriber.
func (t *Transcriber) Close() error { return nil }

// normalizeLanguage converts full language names (as returned by OpenAI) to ISO-639-1 codes.
func normalizeLanguage(lang string) string {
	if len(lang) == 2 {
		return strings.ToLower(lang)
	}
	known := map[string]string{
		"english":    "en",
		"french":     "fr",
		"spanish":    "es",
		"german":     "de",
		"italian":    "it",
		"portuguese": "pt",
		"dutch":      "nl",
		"russian":    "ru",
		"arabic":     "ar",
		"turkish":    "tr",
	}
	if code, ok := known[strings.ToLower(lang)]; ok {
		return code
	}
	return strings.ToLower(lang)
}
