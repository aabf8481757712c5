// Package openai implements the TTS Synthesizer using OpenAI's speech API.
package openai

import (
	"context"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/tts"
)

// Synthesizer calls /audio/speech and requests MP3.
type Synthesizer struct {
	client *goopenai.Client
	model  string
	voice  string
}

// New creates an OpenAI synthesizer from config.
func New(cfg config.OpenAITTSConfig) *Synthesizer {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = string(goopenai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(goopenai.VoiceAlloy)
	}
	return &Synthesizer{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  voice,
	}
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "openai" }

// Synthesize returns MP3 audio. OpenAI voices are multilingual, so the
// language hint is not used; opts.Voice overrides the configured voice.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	voice := s.voice
	if opts.Voice != "" {
		voice = opts.Voice
	}

	raw, err := s.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(s.model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer raw.Close()

	audio, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("reading speech: %w", err)
	}
	return &tts.SynthesizeResult{Audio: audio, ContentType: "audio/mpeg", Channels: 1}, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }
