// Package openai implements the Responder interface over any OpenAI-compatible
// chat completions API. The same backend serves OpenAI itself and Together
// (https://api.together.xyz/v1) by changing the base URL.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/responder"
)

const maxErrorBody = 800

// Tuning holds generation parameters.
type Tuning struct {
	MaxTokens   int
	Temperature float32
}

// Responder calls a chat completions endpoint.
type Responder struct {
	name         string
	client       *goopenai.Client
	model        string
	systemPrompt string
	tuning       Tuning
}

// New creates a chat responder. name identifies the provider in logs and
// attempt records (e.g. "together", "openai").
func New(name string, cfg config.ChatAPIConfig, systemPrompt string, tuning Tuning) *Responder {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Responder{
		name:         name,
		client:       goopenai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		tuning:       tuning,
	}
}

// Name returns the provider identifier.
func (r *Responder) Name() string { return r.name }

// Respond sends the system prompt, the session history and the question.
func (r *Responder) Respond(ctx context.Context, text string, history []message.Turn) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    buildMessages(r.systemPrompt, text, history),
		MaxTokens:   r.tuning.MaxTokens,
		Temperature: r.tuning.Temperature,
	})
	if err != nil {
		return "", r.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned", r.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(systemPrompt, text string, history []message.Turn) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, 2+2*len(history))
	if systemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, t := range history {
		msgs = append(msgs,
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: t.Transcript},
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: text})
}

// wrapError converts go-openai HTTP errors to responder.StatusError so the
// chain can classify auth and quota failures.
func (r *Responder) wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%s chat: %w", r.name, &responder.StatusError{
			Provider:   r.name,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       responder.TruncateBody(apiErr.Message, maxErrorBody),
		})
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%s chat: %w", r.name, &responder.StatusError{
			Provider:   r.name,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       responder.TruncateBody(string(reqErr.Body), maxErrorBody),
		})
	}
	return fmt.Errorf("%s chat: %w", r.name, err)
}
