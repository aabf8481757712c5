// Package huggingface implements the Responder interface using the Hugging
// Face Inference API text-generation task.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/responder"
)

const promptPreamble = "Sen bir e-ticaret müşteri hizmetleri asistanısın. " +
	"Müşteri sorusuna kısa, açık ve yardımcı bir yanıt ver."

// Responder calls the Inference API for one model.
type Responder struct {
	url    string
	apiKey string
	client *http.Client
}

// New creates a Hugging Face responder.
func New(cfg config.HuggingFaceConfig) *Responder {
	return &Responder{
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Model,
		apiKey: cfg.APIKey,
		client: &http.Client{},
	}
}

// Name returns the provider identifier.
func (r *Responder) Name() string { return "huggingface" }

type generateRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters generateParams `json:"parameters"`
}

type generateParams struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generated struct {
	GeneratedText string `json:"generated_text"`
}

// Respond renders a plain-text prompt and returns the generated continuation.
func (r *Responder) Respond(ctx context.Context, text string, history []message.Turn) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Inputs: buildPrompt(text, history),
		Parameters: generateParams{
			MaxNewTokens:   150,
			Temperature:    0.7,
			DoSample:       true,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading huggingface response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b := responder.TruncateBody(string(body), 800)
		return "", &responder.StatusError{Provider: "huggingface", StatusCode: resp.StatusCode, Body: b}
	}

	return parseGenerated(body)
}

// parseGenerated accepts both the list and the object response forms.
func parseGenerated(body []byte) (string, error) {
	var list []generated
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return "", fmt.Errorf("huggingface returned no generations")
		}
		return strings.TrimSpace(list[0].GeneratedText), nil
	}
	var single generated
	if err := json.Unmarshal(body, &single); err != nil {
		return "", fmt.Errorf("decoding huggingface response: %w", err)
	}
	return strings.TrimSpace(single.GeneratedText), nil
}

func buildPrompt(text string, history []message.Turn) string {
	var sb strings.Builder
	sb.WriteString(promptPreamble)
	sb.WriteString("\n\n")
	for _, t := range history {
		sb.WriteString("Müşteri sorusu: " + t.Transcript + "\n")
		sb.WriteString("Yanıt: " + t.Answer + "\n\n")
	}
	sb.WriteString("Müşteri sorusu: " + text + "\n\nYanıt:")
	return sb.String()
}
