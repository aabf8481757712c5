package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadzzz/helpline/internal/audiostore"
	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/history"
	"github.com/nadzzz/helpline/internal/intake"
	"github.com/nadzzz/helpline/internal/responder"
	hfresponder "github.com/nadzzz/helpline/internal/responder/huggingface"
	ollamaresponder "github.com/nadzzz/helpline/internal/responder/ollama"
	openairesponder "github.com/nadzzz/helpline/internal/responder/openai"
	"github.com/nadzzz/helpline/internal/transcriber"
	googlestt "github.com/nadzzz/helpline/internal/transcriber/google"
	openaistt "github.com/nadzzz/helpline/internal/transcriber/openai"
	whisperstt "github.com/nadzzz/helpline/internal/transcriber/whisper"
	"github.com/nadzzz/helpline/internal/tts"
	"github.com/nadzzz/helpline/internal/tts/elevenlabs"
	openaitts "github.com/nadzzz/helpline/internal/tts/openai"
	"github.com/nadzzz/helpline/internal/tts/piper"
)

// chatTuning matches the hosted prompts: short, fairly deterministic answers.
var chatTuning = openairesponder.Tuning{MaxTokens: 200, Temperature: 0.5}

func buildTranscriber(ctx context.Context, cfg config.TranscriberConfig) (transcriber.Transcriber, error) {
	switch cfg.Backend {
	case "whisper":
		slog.Info("using self-hosted whisper",
			"endpoint", cfg.Whisper.Endpoint,
			"type", cfg.Whisper.Type,
			"model", cfg.Whisper.Model)
		return whisperstt.New(cfg.Whisper), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("transcriber.openai.api_key is required for the openai backend")
		}
		slog.Info("using OpenAI transcription", "model", cfg.OpenAI.Model)
		return openaistt.New(cfg.OpenAI), nil
	case "google":
		slog.Info("using Google Cloud Speech", "language_code", cfg.Google.LanguageCode)
		return googlestt.New(ctx, cfg.Google)
	default:
		return nil, fmt.Errorf("unknown transcriber backend %q", cfg.Backend)
	}
}

// buildResponders returns the configured chain candidates in order. Providers
// without credentials are skipped; the rule responder is appended by the chain.
func buildResponders(cfg config.ResponderConfig) []responder.Responder {
	var out []responder.Responder
	for _, name := range cfg.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "together":
			if cfg.Together.APIKey == "" {
				slog.Info("skipping responder without api key", "provider", name)
				continue
			}
			out = append(out, openairesponder.New("together", cfg.Together, cfg.SystemPrompt, chatTuning))
		case "openai":
			if cfg.OpenAI.APIKey == "" {
				slog.Info("skipping responder without api key", "provider", name)
				continue
			}
			out = append(out, openairesponder.New("openai", cfg.OpenAI, cfg.SystemPrompt, chatTuning))
		case "huggingface":
			if cfg.HuggingFace.APIKey == "" {
				slog.Info("skipping responder without api key", "provider", name)
				continue
			}
			out = append(out, hfresponder.New(cfg.HuggingFace))
		case "ollama":
			if cfg.Ollama.Endpoint == "" {
				slog.Info("skipping responder without endpoint", "provider", name)
				continue
			}
			out = append(out, ollamaresponder.New(cfg.Ollama, cfg.SystemPrompt))
		case "rules":
			// Always last; added by the chain.
		default:
			slog.Warn("unknown responder in config, ignoring", "provider", name)
		}
	}
	return out
}

func buildSynthesizers(cfg config.TTSConfig) []tts.Synthesizer {
	var out []tts.Synthesizer
	for _, name := range cfg.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "elevenlabs":
			if cfg.ElevenLabs.APIKey == "" {
				slog.Info("skipping tts provider without api key", "provider", name)
				continue
			}
			out = append(out, elevenlabs.New(cfg.ElevenLabs))
		case "openai":
			if cfg.OpenAI.APIKey == "" {
				slog.Info("skipping tts provider without api key", "provider", name)
				continue
			}
			out = append(out, openaitts.New(cfg.OpenAI))
		case "piper":
			if cfg.Piper.Endpoint == "" && len(cfg.Piper.Endpoints) == 0 {
				slog.Info("skipping tts provider without endpoint", "provider", name)
				continue
			}
			out = append(out, piper.New(cfg.Piper))
		default:
			slog.Warn("unknown tts provider in config, ignoring", "provider", name)
		}
	}
	return out
}

func buildAudioStore(ctx context.Context, cfg config.StorageConfig, baseURL string) (audiostore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return audiostore.NewS3(ctx, cfg.S3, baseURL)
	default:
		return audiostore.NewLocal(cfg.ResponseDir, baseURL)
	}
}

func buildHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Backend {
	case "redis":
		return history.NewRedis(ctx, cfg.Redis, cfg.MaxTurns, cfg.TTL)
	case "memory":
		return history.NewMemory(cfg.MaxTurns, cfg.TTL), nil
	default:
		return history.Nop{}, nil
	}
}

// janitor removes stale uploads, expired replies and idle in-memory sessions.
type janitor struct {
	spool       *intake.Spool
	uploadTTL   time.Duration
	store       audiostore.Store
	responseTTL time.Duration
	history     history.Store
}

func (j *janitor) sweep(ctx context.Context) {
	if j.spool != nil && j.uploadTTL > 0 {
		if n, err := j.spool.Sweep(j.uploadTTL); err != nil {
			slog.Warn("upload sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("removed stale uploads", "count", n)
		}
	}
	if j.store != nil && j.responseTTL > 0 {
		if n, err := j.store.Sweep(ctx, j.responseTTL); err != nil {
			slog.Warn("response sweep failed", "store", j.store.Name(), "error", err)
		} else if n > 0 {
			slog.Info("removed expired responses", "store", j.store.Name(), "count", n)
		}
	}
	if mem, ok := j.history.(*history.Memory); ok {
		if n := mem.Prune(); n > 0 {
			slog.Info("pruned idle sessions", "count", n)
		}
	}
}

func (j *janitor) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}
