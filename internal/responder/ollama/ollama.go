// Package ollama implements the Responder interface using a self-hosted chat
// model.
//
// It speaks Ollama's /api/chat and any OpenAI-compatible /v1/chat/completions
// endpoint (vLLM, llama.cpp server); the reply format is detected from the body.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/responder"
)

// Responder talks to a local LLM endpoint.
type Responder struct {
	endpoint     string
	model        string
	systemPrompt string
	client       *http.Client
}

// New creates a local responder from config.
func New(cfg config.OllamaConfig, systemPrompt string) *Responder {
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &Responder{
		endpoint:     cfg.Endpoint,
		model:        model,
		systemPrompt: systemPrompt,
		client:       &http.Client{},
	}
}

// Name returns the provider identifier.
func (r *Responder) Name() string { return "ollama" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Respond posts a non-streaming chat request.
func (r *Responder) Respond(ctx context.Context, text string, history []message.Turn) (string, error) {
	msgs := make([]chatMessage, 0, 2+2*len(history))
	if r.systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: r.systemPrompt})
	}
	for _, t := range history {
		msgs = append(msgs,
			chatMessage{Role: "user", Content: t.Transcript},
			chatMessage{Role: "assistant", Content: t.Answer})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: text})

	bodyBytes, err := json.Marshal(map[string]any{
		"model":       r.model,
		"messages":    msgs,
		"temperature": 0.5,
		"stream":      false,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 800))
		return "", &responder.StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading LLM response: %w", err)
	}

	content := extractContent(respData)
	if content == "" {
		return "", fmt.Errorf("empty response from local LLM")
	}
	slog.Debug("local LLM answered", "model", r.model, "length", len(content))
	return content, nil
}

func extractContent(data []byte) string {
	// OpenAI-compatible: {"choices": [{"message": {"content": "..."}}]}
	var chatResp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	// Ollama chat: {"message": {"content": "..."}}; generate: {"response": "..."}
	var ollamaResp struct {
		Message  chatMessage `json:"message"`
		Response string      `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil {
		if ollamaResp.Message.Content != "" {
			return ollamaResp.Message.Content
		}
		return ollamaResp.Response
	}
	return ""
}
