// Package whisper implements the Transcriber interface against a self-hosted
// Whisper server.
//
// Two server flavours are supported:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/transcriber"
)

// Transcriber talks to a Whisper-compatible HTTP endpoint.
type Transcriber struct {
	endpoint  string
	flavour   string // "openai" or "asr"
	model     string
	vadFilter bool
	client    *http.Client
}

// New creates a Whisper transcriber from config.
func New(cfg config.WhisperConfig) *Transcriber {
	flavour := cfg.Type
	if flavour == "" {
		flavour = "openai"
	}
	return &Transcriber{
		endpoint:  cfg.Endpoint,
		flavour:   flavour,
		model:     cfg.Model,
		vadFilter: cfg.VADFilter,
		client:    &http.Client{},
	}
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "whisper" }

// Transcribe uploads the audio to the configured server.
func (t *Transcriber) Transcribe(ctx context.Context, audio *message.ValidatedAudio, opts transcriber.Options) (*transcriber.Result, error) {
	if t.flavour == "asr" {
		return t.transcribeASR(ctx, audio, opts)
	}
	return t.transcribeOpenAI(ctx, audio, opts)
}

// transcribeASR handles the whisper-asr-webservice format.
// API: POST /asr?task=transcribe&language=tr&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file"
func (t *Transcriber) transcribeASR(ctx context.Context, audio *message.ValidatedAudio, opts transcriber.Options) (*transcriber.Result, error) {
	body, contentType, err := multipartAudio("audio_file", audio, nil)
	if err != nil {
		return nil, err
	}

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if t.vadFilter {
		q.Set("vad_filter", "true")
	}

	reqURL := t.endpoint + "?" + q.Encode()
	slog.Debug("whisper-asr request", "url", reqURL)
	return t.post(ctx, reqURL, body, contentType)
}

// transcribeOpenAI handles OpenAI-compatible whisper endpoints.
func (t *Transcriber) transcribeOpenAI(ctx context.Context, audio *message.ValidatedAudio, opts transcriber.Options) (*transcriber.Result, error) {
	fields := map[string]string{"response_format": "json"}
	if t.model != "" {
		fields["model"] = t.model
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}

	body, contentType, err := multipartAudio("file", audio, fields)
	if err != nil {
		return nil, err
	}
	return t.post(ctx, t.endpoint, body, contentType)
}

func (t *Transcriber) post(ctx context.Context, reqURL string, body *bytes.Buffer, contentType string) (*transcriber.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("whisper transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding transcription: %w", err)
	}

	return &transcriber.Result{
		Text:     result.Text,
		Language: result.Language,
	}, nil
}

// Close is a no-op for the whisper transcriber.
func (t *Transcriber) Close() error { return nil }

// multipartAudio builds a form with the audio under field and any extra fields.
// The part is named by extension only so the client's filename never leaves the process.
func multipartAudio(field string, audio *message.ValidatedAudio, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, "audio"+audio.Ext)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio.Submission.Data); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
