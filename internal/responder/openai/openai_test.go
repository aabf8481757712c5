package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/responder"
)

func TestRespond_SendsHistoryAndReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer tg-key", r.Header.Get("Authorization"))

		var req struct {
			Model       string  `json:"model"`
			MaxTokens   int     `json:"max_tokens"`
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo", req.Model)
		assert.Equal(t, 200, req.MaxTokens)
		assert.InDelta(t, 0.5, req.Temperature, 0.001)
		require.Len(t, req.Messages, 4)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "önceki soru", req.Messages[1].Content)
		assert.Equal(t, "assistant", req.Messages[2].Role)
		assert.Equal(t, "Kargo ne zaman gelir?", req.Messages[3].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Yarın teslim edilir."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	r := New("together", config.ChatAPIConfig{
		APIKey:  "tg-key",
		Model:   "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo",
		BaseURL: srv.URL + "/v1",
	}, "persona", Tuning{MaxTokens: 200, Temperature: 0.5})

	history := []message.Turn{{Transcript: "önceki soru", Answer: "önceki yanıt", Timestamp: time.Now()}}
	out, err := r.Respond(context.Background(), "Kargo ne zaman gelir?", history)
	require.NoError(t, err)
	assert.Equal(t, "Yarın teslim edilir.", out)
	assert.Equal(t, "together", r.Name())
}

func TestRespond_ClassifiesHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "quota", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited","type":"rate_limit"}}`, want: "quota"},
		{name: "auth", status: http.StatusUnauthorized, body: `{"error":{"message":"invalid key","type":"auth"}}`, want: "auth"},
		{name: "non-json body", status: http.StatusBadGateway, body: `upstream down`, want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := New("openai", config.ChatAPIConfig{APIKey: "k", Model: "m", BaseURL: srv.URL + "/v1"}, "", Tuning{})
			_, err := r.Respond(context.Background(), "merhaba", nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, responder.Classify(err))
			assert.NotContains(t, err.Error(), "Bearer")
		})
	}
}
