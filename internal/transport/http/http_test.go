package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/helpline/internal/audiostore"
	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/health"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
)

// recorder is a pipeline stand-in that keeps the last request.
type recorder struct {
	mu   sync.Mutex
	last *message.Request
	res  outcome.Result[*message.AssistantResponse]
}

func (rec *recorder) handle(_ context.Context, req *message.Request) outcome.Result[*message.AssistantResponse] {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.last = req
	return rec.res
}

func okResult() outcome.Result[*message.AssistantResponse] {
	return outcome.OK(&message.AssistantResponse{
		TranscribedText:   "Kargo ne zaman gelir?",
		AssistantResponse: "Kargonuz yarın teslim edilecek.",
		Status: message.Status{
			Provider: "huggingface",
			Attempts: []message.Attempt{
				{Provider: "together", Outcome: "quota"},
				{Provider: "huggingface", Outcome: "ok"},
			},
		},
	})
}

type fixture struct {
	srv   *httptest.Server
	rec   *recorder
	store *audiostore.Local
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	store, err := audiostore.NewLocal(t.TempDir(), "")
	require.NoError(t, err)

	checker := health.NewChecker(health.Info{STTBackend: "whisper", Responders: []string{"together", "rules"}})
	checker.SetReady(true)

	opts := Options{
		MaxUploadBytes: 1 << 20,
		CORSOrigins:    []string{"*"},
		Files:          store,
		Health:         checker,
		Version:        "test",
	}
	if mutate != nil {
		mutate(&opts)
	}

	rec := &recorder{res: okResult()}
	srv := httptest.NewServer(New(opts).Router(rec.handle))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, rec: rec, store: store}
}

func multipartBody(t *testing.T, field, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAsk_Success(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t, "audio_file", "q.wav", []byte("RIFF....WAVE"), map[string]string{
		"session_id": "call-42",
		"language":   "tr",
	})

	resp, err := http.Post(f.srv.URL+"/ask_assistant", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "huggingface", resp.Header.Get(headerProvider))
	assert.Equal(t, "together:quota,huggingface:ok", resp.Header.Get(headerAttempts))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"transcribed_text": "Kargo ne zaman gelir?",
		"assistant_response": "Kargonuz yarın teslim edilecek.",
		"response_audio_url": null
	}`, string(raw))

	got := f.rec.last
	require.NotNil(t, got.Audio)
	assert.Equal(t, "q.wav", got.Audio.Filename)
	assert.Equal(t, []byte("RIFF....WAVE"), got.Audio.Data)
	assert.EqualValues(t, 12, got.Audio.Size)
	assert.Equal(t, "call-42", got.SessionID)
	assert.Equal(t, "tr", got.Language)
	assert.NotEmpty(t, got.ID)
}

func TestAsk_FileFieldFallbackAndSessionHeader(t *testing.T) {
	f := newFixture(t, nil)
	body, ct := multipartBody(t, "file", "q.mp3", []byte("ID3"), nil)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/ask_assistant", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(headerSession, "hdr-session")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "q.mp3", f.rec.last.Audio.Filename)
	assert.Equal(t, "hdr-session", f.rec.last.SessionID)
}

func TestAsk_MissingFile(t *testing.T) {
	tests := []struct {
		name string
		body func(t *testing.T) (io.Reader, string)
	}{
		{name: "no file part", body: func(t *testing.T) (io.Reader, string) {
			b, ct := multipartBody(t, "", "", nil, map[string]string{"session_id": "x"})
			return b, ct
		}},
		{name: "wrong field name", body: func(t *testing.T) (io.Reader, string) {
			b, ct := multipartBody(t, "upload", "q.wav", []byte("RIFF"), nil)
			return b, ct
		}},
		{name: "not multipart", body: func(*testing.T) (io.Reader, string) {
			return strings.NewReader(`{"audio":"x"}`), "application/json"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			body, ct := tt.body(t)
			resp, err := http.Post(f.srv.URL+"/ask_assistant", ct, body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			e := decodeError(t, resp)
			assert.Equal(t, "invalid_input", e.Error)
			assert.Equal(t, "missing_file", e.Reason)
			assert.Nil(t, f.rec.last)
		})
	}
}

func TestAsk_BodyTooLarge(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxUploadBytes = 1024 })
	body, ct := multipartBody(t, "audio_file", "big.wav", make([]byte, 128<<10), nil)

	resp, err := http.Post(f.srv.URL+"/ask_assistant", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, "too_large", e.Reason)
	assert.Nil(t, f.rec.last)
}

func TestAsk_FailureMapping(t *testing.T) {
	tests := []struct {
		name     string
		failure  *outcome.Failure
		wantCode int
	}{
		{"unsupported", outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonUnsupportedFormat, "file type not allowed", nil), http.StatusBadRequest},
		{"too large", outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonTooLarge, "file too large", nil), http.StatusRequestEntityTooLarge},
		{"provider", outcome.NewFailure(outcome.KindProviderUnavailable, outcome.ReasonNone, "speech-to-text provider unavailable", nil), http.StatusServiceUnavailable},
		{"internal", outcome.NewFailure(outcome.KindInternalFailure, outcome.ReasonNone, "could not store upload", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.rec.res = outcome.FromFailure[*message.AssistantResponse](tt.failure)

			body, ct := multipartBody(t, "audio_file", "q.wav", []byte("RIFF"), nil)
			resp, err := http.Post(f.srv.URL+"/ask_assistant", ct, body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			e := decodeError(t, resp)
			assert.Equal(t, string(tt.failure.Kind), e.Error)
			assert.Equal(t, tt.failure.Message, e.Message)
		})
	}
}

func TestAsk_FailureHidesCause(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.res = outcome.Fail[*message.AssistantResponse](outcome.KindProviderUnavailable, outcome.ReasonNone,
		"speech-to-text provider unavailable", io.ErrUnexpectedEOF)

	body, ct := multipartBody(t, "audio_file", "q.wav", []byte("RIFF"), nil)
	resp, err := http.Post(f.srv.URL+"/ask_assistant", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "unexpected EOF")
}

func TestAskText(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Post(f.srv.URL+"/ask_text", "application/json",
		strings.NewReader(`{"text":"Siparişim nerede?","session_id":"s-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Siparişim nerede?", f.rec.last.Text)
	assert.Equal(t, "s-1", f.rec.last.SessionID)
	assert.Nil(t, f.rec.last.Audio)
}

func TestAskText_InvalidJSON(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Post(f.srv.URL+"/ask_text", "application/json", strings.NewReader(`{"text":`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", decodeError(t, resp).Error)
	assert.Nil(t, f.rec.last)
}

func TestAskText_EmptyText(t *testing.T) {
	for _, body := range []string{`{"text":""}`, `{"text":"   "}`, `{}`} {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t, nil)

			resp, err := http.Post(f.srv.URL+"/ask_text", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			e := decodeError(t, resp)
			assert.Equal(t, "invalid_input", e.Error)
			assert.Equal(t, "empty", e.Reason)
			assert.Equal(t, "no text provided", e.Message)
			assert.Nil(t, f.rec.last)
		})
	}
}

func TestResponses(t *testing.T) {
	f := newFixture(t, nil)
	obj, err := f.store.Put(context.Background(), []byte("ID3audio"), ".mp3", "audio/mpeg")
	require.NoError(t, err)

	t.Run("serves stored audio", func(t *testing.T) {
		resp, err := http.Get(f.srv.URL + obj.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(resp.Body)
		assert.Equal(t, []byte("ID3audio"), raw)
	})

	for _, path := range []string{
		"/responses/00000000-0000-0000-0000-000000000000.mp3",
		"/responses/notes.txt",
		"/responses/..%2Fconfig.yaml",
	} {
		t.Run("404 "+path, func(t *testing.T) {
			resp, err := http.Get(f.srv.URL + path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestHealthAndIndex(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep health.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, health.StatusHealthy, rep.Status)
	assert.Equal(t, "whisper", rep.STTBackend)
	assert.Equal(t, []string{"together", "rules"}, rep.Responders)

	resp2, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var info serviceInfo
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&info))
	assert.Equal(t, "helpline", info.Name)
	assert.Equal(t, []string{"flac", "m4a", "mp3", "mp4", "ogg", "wav"}, info.SupportedFormats)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RateLimits = config.RateLimitConfig{Text: 2} })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(f.srv.URL+"/ask_text", "application/json", strings.NewReader(`{"text":"merhaba"}`))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			assert.Equal(t, "rate_limited", decodeError(t, resp).Error)
		}
		resp.Body.Close()
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// Other endpoints have their own budget.
	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CORSOrigins = []string{"https://shop.example"} })

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/ask_text", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonEmpty, "", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(outcome.NewFailure("something_else", outcome.ReasonNone, "", nil)))
}

func TestListen_ShutsDownOnCancel(t *testing.T) {
	tr := New(Options{Port: 0, MaxUploadBytes: 1 << 20})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Listen(ctx, (&recorder{res: okResult()}).handle) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listen did not return after cancel")
	}
}
