// Package responder defines the answer-generation capability and the ordered
// provider chain in front of it.
//
// Candidates are tried strictly in configured order, one at a time, each with
// its own timeout. When every remote candidate fails the deterministic rule
// responder answers, so an outage of all hosted models never fails a request.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
)

// EmptyInputAnswer is returned for empty or whitespace-only input without
// consulting any provider.
const EmptyInputAnswer = "Seni duyamadım, tekrar eder misin?"

// ProviderCanned names the answer source for EmptyInputAnswer.
const ProviderCanned = "canned"

// Responder turns a customer question into an answer.
type Responder interface {
	// Name returns the provider identifier (e.g. "together", "huggingface", "rules").
	Name() string

	// Respond produces an answer. history holds prior turns of the session,
	// oldest first, and may be empty.
	Respond(ctx context.Context, text string, history []message.Turn) (string, error)
}

// Answer is the chain's successful output.
type Answer struct {
	Text     string
	Provider string
	Attempts []message.Attempt
}

// StatusError is returned by HTTP-based responders for a non-2xx reply.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// TruncateBody shortens an error body to at most n bytes without splitting
// a UTF-8 sequence.
func TruncateBody(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...(truncated)"
}

// Chain tries candidates in order and ends with the fallback.
type Chain struct {
	candidates []Responder
	fallback   Responder
	timeout    time.Duration
}

// NewChain creates a chain. fallback is consulted only after every candidate
// has failed and must not depend on the network.
func NewChain(candidates []Responder, fallback Responder, timeout time.Duration) *Chain {
	return &Chain{candidates: candidates, fallback: fallback, timeout: timeout}
}

// Providers lists the chain in the order it is tried, fallback last.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.candidates)+1)
	for _, r := range c.candidates {
		names = append(names, r.Name())
	}
	if c.fallback != nil {
		names = append(names, c.fallback.Name())
	}
	return names
}

// Respond walks the chain and returns the first non-empty answer.
func (c *Chain) Respond(ctx context.Context, text string, history []message.Turn) outcome.Result[Answer] {
	if strings.TrimSpace(text) == "" {
		return outcome.OK(Answer{Text: EmptyInputAnswer, Provider: ProviderCanned})
	}

	var attempts []message.Attempt

	for _, r := range c.candidates {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}

		start := time.Now()
		out, err := c.call(ctx, r, text, history)
		attempt := message.Attempt{Provider: r.Name(), Duration: time.Since(start)}

		if err == nil {
			attempt.Outcome = "ok"
			attempts = append(attempts, attempt)
			return outcome.OK(Answer{Text: out, Provider: r.Name(), Attempts: attempts})
		}

		// The request itself went away; the provider is not to blame.
		if ctx.Err() != nil {
			return canceled(ctx.Err())
		}

		attempt.Outcome = Classify(err)
		attempts = append(attempts, attempt)
		slog.Warn("responder failed, trying next",
			"provider", r.Name(),
			"outcome", attempt.Outcome,
			"duration", attempt.Duration,
			"error", err)
	}

	if c.fallback == nil {
		return outcome.Fail[Answer](outcome.KindProviderUnavailable, outcome.ReasonNone,
			"no language model provider could answer", nil)
	}
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}

	start := time.Now()
	out, err := c.call(ctx, c.fallback, text, history)
	attempt := message.Attempt{Provider: c.fallback.Name(), Duration: time.Since(start), Outcome: "ok"}
	if err != nil {
		slog.Error("fallback responder failed", "provider", c.fallback.Name(), "error", err)
		return outcome.Fail[Answer](outcome.KindProviderUnavailable, outcome.ReasonNone,
			"no language model provider could answer", err)
	}
	attempts = append(attempts, attempt)
	if len(c.candidates) > 0 {
		slog.Info("using local fallback responder", "provider", c.fallback.Name(), "failed_attempts", len(attempts)-1)
	}
	return outcome.OK(Answer{Text: out, Provider: c.fallback.Name(), Attempts: attempts})
}

// call invokes one responder with the per-candidate timeout. An empty answer
// counts as a failure.
func (c *Chain) call(ctx context.Context, r Responder, text string, history []message.Turn) (out string, err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("responder %s panicked: %v", r.Name(), p)
		}
	}()

	out, err = r.Respond(ctx, text, history)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty answer")
	}
	return out, nil
}

// Classify maps a responder error to an attempt outcome label.
func Classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case 401, 403:
			return "auth"
		case 429:
			return "quota"
		case 408, 504:
			return "timeout"
		}
	}
	return "error"
}

// FormatAttempts renders attempts as "together:quota,huggingface:ok".
func FormatAttempts(attempts []message.Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = a.Provider + ":" + a.Outcome
	}
	return strings.Join(parts, ",")
}

func canceled(err error) outcome.Result[Answer] {
	return outcome.Fail[Answer](outcome.KindInternalFailure, outcome.ReasonCanceled, "request canceled", err)
}
