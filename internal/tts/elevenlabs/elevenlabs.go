// Package elevenlabs implements the TTS Synthesizer using the ElevenLabs
// text-to-speech REST API. Replies are MP3.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/tts"
)

const (
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID = "eleven_multilingual_v2"
)

// Synthesizer calls ElevenLabs.
type Synthesizer struct {
	apiKey  string
	voiceID string
	modelID string
	baseURL string
	client  *http.Client
}

// New creates an ElevenLabs synthesizer from config.
func New(cfg config.ElevenLabsConfig) *Synthesizer {
	voice := cfg.VoiceID
	if voice == "" {
		voice = defaultVoiceID
	}
	model := cfg.ModelID
	if model == "" {
		model = defaultModelID
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.elevenlabs.io/v1"
	}
	return &Synthesizer{
		apiKey:  cfg.APIKey,
		voiceID: voice,
		modelID: model,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{},
	}
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "elevenlabs" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MP3 audio for text. opts.Voice overrides the configured voice id.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	voice := s.voiceID
	if opts.Voice != "" {
		voice = opts.Voice
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:          text,
		ModelID:       s.modelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", s.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 800))
		return nil, fmt.Errorf("elevenlabs tts failed (status %d): %s", resp.StatusCode, b)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "audio/") {
		ct = "audio/mpeg"
	}
	return &tts.SynthesizeResult{Audio: audio, ContentType: ct, Channels: 1}, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }
