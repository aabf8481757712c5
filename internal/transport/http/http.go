// Package http implements the public HTTP API for helpline.
//
// Voice questions arrive as multipart uploads on POST /ask_assistant, typed
// questions as JSON on POST /ask_text. Synthesized replies are fetched from
// GET /responses/{filename} by generated name only.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/helpline/internal/audiostore"
	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/health"
	"github.com/nadzzz/helpline/internal/intake"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
	"github.com/nadzzz/helpline/internal/responder"
	"github.com/nadzzz/helpline/internal/transport"
)

const (
	// multipartOverhead allows for part headers and boundaries on top of the file.
	multipartOverhead = 64 << 10

	// multipartMemory is held in memory before multipart parts spill to disk.
	multipartMemory = 8 << 20

	maxTextBody = 64 << 10

	headerProvider = "X-Helpline-Provider"
	headerAttempts = "X-Helpline-Attempts"
	headerSession  = "X-Session-ID"
)

// Options configures the transport.
type Options struct {
	Port           int
	MaxUploadBytes int64
	CORSOrigins    []string
	RateLimits     config.RateLimitConfig

	// Files serves synthesized replies. Nil disables /responses.
	Files audiostore.Store

	// Health backs GET /health.
	Health *health.Checker

	Version string
}

// Transport implements transport.Transport over HTTP.
type Transport struct {
	opts   Options
	server *http.Server
}

// New creates a new HTTP transport.
func New(opts Options) *Transport {
	return &Transport{opts: opts}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Router builds the route table around handler.
func (t *Transport) Router(handler transport.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: t.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", headerSession},
		ExposedHeaders: []string{headerProvider, headerAttempts, middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/", t.handleIndex)
	r.Get("/health", t.handleHealth)

	r.With(limit(t.opts.RateLimits.Ask)).Post("/ask_assistant", func(w http.ResponseWriter, r *http.Request) {
		t.handleAsk(w, r, handler)
	})
	r.With(limit(t.opts.RateLimits.Text)).Post("/ask_text", func(w http.ResponseWriter, r *http.Request) {
		t.handleAskText(w, r, handler)
	})
	r.With(limit(t.opts.RateLimits.Files)).Get("/responses/{filename}", t.handleResponseFile)

	// Swagger UI serves the registered OpenAPI docs.
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return r
}

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.opts.Port),
		Handler:           t.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.opts.Port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error   string `json:"error" example:"invalid_input"`
	Reason  string `json:"reason" example:"unsupported_format"`
	Message string `json:"message" example:"file type not allowed"`
}

// askTextRequest is the body of POST /ask_text.
type askTextRequest struct {
	Text      string `json:"text" example:"Siparişim nerede?"`
	SessionID string `json:"session_id,omitempty"`
	Language  string `json:"language,omitempty" example:"tr"`
}

// serviceInfo is the body of GET /.
type serviceInfo struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	Endpoints        []string `json:"endpoints"`
	SupportedFormats []string `json:"supported_formats"`
}

// handleAsk processes a POST /ask_assistant request.
//
// @Summary     Ask with a voice recording
// @Description Uploads an audio question. It is transcribed, answered through the ordered
// @Description language-model chain (rule-based fallback last) and, if enabled, synthesized.
// @Tags        assistant
// @Accept      multipart/form-data
// @Produce     json
// @Param       audio_file    formData  file    true   "Audio file (wav, mp3, mp4, m4a, flac, ogg). The field may also be named 'file'."
// @Param       session_id    formData  string  false  "Conversation id for history"
// @Param       language      formData  string  false  "ISO-639-1 transcription hint"
// @Param       X-Session-ID  header    string  false  "Conversation id, when not sent as a form field"
// @Success     200  {object}  message.AssistantResponse
// @Failure     400  {object}  errorResponse  "Missing, empty or unsupported audio"
// @Failure     413  {object}  errorResponse  "Upload too large"
// @Failure     429  {object}  errorResponse  "Rate limited"
// @Failure     503  {object}  errorResponse  "Speech-to-text or every language model unavailable"
// @Failure     500  {object}  errorResponse  "Internal failure"
// @Router      /ask_assistant [post]
func (t *Transport) handleAsk(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	sub, f := t.readUpload(w, r)
	if f != nil {
		writeFailure(w, f)
		return
	}

	req := &message.Request{
		ID:         middleware.GetReqID(r.Context()),
		SessionID:  sessionID(r, r.FormValue("session_id")),
		Audio:      sub,
		Language:   strings.TrimSpace(r.FormValue("language")),
		ReceivedAt: time.Now(),
	}
	reply(w, handler(r.Context(), req))
}

// handleAskText processes a POST /ask_text request.
//
// @Summary     Ask with text
// @Description Answers a typed question through the same chain, skipping upload validation and transcription.
// @Tags        assistant
// @Accept      json
// @Produce     json
// @Param       request  body      askTextRequest  true  "Question"
// @Success     200  {object}  message.AssistantResponse
// @Failure     400  {object}  errorResponse  "Invalid JSON or empty text"
// @Failure     429  {object}  errorResponse  "Rate limited"
// @Failure     503  {object}  errorResponse  "Every language model unavailable"
// @Router      /ask_text [post]
func (t *Transport) handleAskText(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var body askTextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBody)).Decode(&body); err != nil {
		writeFailure(w, outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonNone, "invalid json body", err))
		return
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		writeFailure(w, outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonEmpty, "no text provided", nil))
		return
	}

	req := &message.Request{
		ID:         middleware.GetReqID(r.Context()),
		SessionID:  sessionID(r, body.SessionID),
		Text:       text,
		Language:   strings.TrimSpace(body.Language),
		ReceivedAt: time.Now(),
	}
	reply(w, handler(r.Context(), req))
}

// handleResponseFile serves a synthesized reply.
//
// @Summary     Fetch synthesized audio
// @Tags        assistant
// @Produce     audio/mpeg
// @Produce     audio/wav
// @Param       filename  path  string  true  "Generated file name from response_audio_url"
// @Success     200  {file}    binary
// @Failure     404  {object}  errorResponse
// @Router      /responses/{filename} [get]
func (t *Transport) handleResponseFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if t.opts.Files == nil || !audiostore.ValidName(name) {
		writeError(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "audio not found"})
		return
	}

	rc, obj, err := t.opts.Files.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, audiostore.ErrNotFound) {
			writeError(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "audio not found"})
			return
		}
		slog.Error("opening response audio failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, errorResponse{
			Error:   string(outcome.KindInternalFailure),
			Message: "could not read audio",
		})
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("streaming response audio interrupted", "name", name, "error", err)
	}
}

// handleHealth reports pipeline configuration and component health.
//
// @Summary     Service health
// @Tags        service
// @Produce     json
// @Success     200  {object}  health.Report
// @Router      /health [get]
func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if t.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": health.StatusHealthy})
		return
	}
	writeJSON(w, http.StatusOK, t.opts.Health.Report(r.Context()))
}

// handleIndex describes the service.
//
// @Summary     Service information
// @Tags        service
// @Produce     json
// @Success     200  {object}  serviceInfo
// @Router      / [get]
func (t *Transport) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, serviceInfo{
		Name:    "helpline",
		Version: t.opts.Version,
		Endpoints: []string{
			"POST /ask_assistant",
			"POST /ask_text",
			"GET /responses/{filename}",
			"GET /health",
			"GET /swagger/",
		},
		SupportedFormats: intake.SupportedFormats(),
	})
}

// readUpload extracts the audio part. The field is "audio_file", or "file"
// for older clients.
func (t *Transport) readUpload(w http.ResponseWriter, r *http.Request) (*message.AudioSubmission, *outcome.Failure) {
	r.Body = http.MaxBytesReader(w, r.Body, t.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, intake.TooLarge(t.opts.MaxUploadBytes)
		}
		return nil, outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonMissingFile,
			"expected a multipart upload with an audio_file field", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio_file")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		return nil, outcome.NewFailure(outcome.KindInvalidInput, outcome.ReasonMissingFile, "no audio file provided", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, outcome.NewFailure(outcome.KindInternalFailure, outcome.ReasonNone, "could not read upload", err)
	}
	return &message.AudioSubmission{
		Data:     data,
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Size:     header.Size,
	}, nil
}

func sessionID(r *http.Request, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	return strings.TrimSpace(r.Header.Get(headerSession))
}

func reply(w http.ResponseWriter, res outcome.Result[*message.AssistantResponse]) {
	if !res.Ok() {
		writeFailure(w, res.Failure)
		return
	}
	st := res.Value.Status
	if st.Provider != "" {
		w.Header().Set(headerProvider, st.Provider)
	}
	if len(st.Attempts) > 0 {
		w.Header().Set(headerAttempts, responder.FormatAttempts(st.Attempts))
	}
	writeJSON(w, http.StatusOK, res.Value)
}

// StatusFor maps a failure to its HTTP status.
func StatusFor(f *outcome.Failure) int {
	switch f.Kind {
	case outcome.KindInvalidInput:
		if f.Reason == outcome.ReasonTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case outcome.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, f *outcome.Failure) {
	writeError(w, StatusFor(f), errorResponse{
		Error:   string(f.Kind),
		Reason:  string(f.Reason),
		Message: f.Message,
	})
}

func writeError(w http.ResponseWriter, code int, body errorResponse) {
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// limit returns a per-client-IP limiter of n requests per minute. n <= 0
// disables it.
func limit(n int) func(http.Handler) http.Handler {
	if n <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(n, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, errorResponse{
				Error:   "rate_limited",
				Message: "too many requests, try again later",
			})
		}),
	)
}

// accessLog logs one line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
