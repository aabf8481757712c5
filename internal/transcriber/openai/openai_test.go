package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/transcriber"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "tr", r.FormValue("language"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"turkish","duration":1.2,"text":"İade nasıl yapılır?"}`))
	}))
	defer srv.Close()

	tr := New(config.OpenAISTTConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	res, err := tr.Transcribe(context.Background(), &message.ValidatedAudio{
		Submission: &message.AudioSubmission{Data: []byte("ID3audio")},
		Ext:        ".mp3",
	}, transcriber.Options{Language: "tr"})

	require.NoError(t, err)
	assert.Equal(t, "İade nasıl yapılır?", res.Text)
	assert.Equal(t, "tr", res.Language)
}

func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	tr := New(config.OpenAISTTConfig{APIKey: "sk-bad", BaseURL: srv.URL + "/v1"})
	_, err := tr.Transcribe(context.Background(), &message.ValidatedAudio{
		Submission: &message.AudioSubmission{Data: []byte("x")},
		Ext:        ".wav",
	}, transcriber.Options{})
	require.Error(t, err)
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"turkish": "tr",
		"English": "en",
		"TR":      "tr",
		"klingon": "klingon",
		"":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeLanguage(in), in)
	}
}
