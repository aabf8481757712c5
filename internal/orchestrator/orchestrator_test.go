package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/helpline/internal/audio"
	"github.com/nadzzz/helpline/internal/audiostore"
	"github.com/nadzzz/helpline/internal/history"
	"github.com/nadzzz/helpline/internal/intake"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
	"github.com/nadzzz/helpline/internal/responder"
	"github.com/nadzzz/helpline/internal/responder/rules"
	"github.com/nadzzz/helpline/internal/transcriber"
	"github.com/nadzzz/helpline/internal/tts"
)

// fakeSTT records calls and checks that the spooled file exists while it runs.
type fakeSTT struct {
	mu       sync.Mutex
	text     string
	lang     string
	err      error
	calls    int
	sawFile  bool
	lastPath string
}

func (f *fakeSTT) Name() string { return "fake" }
func (f *fakeSTT) Close() error { return nil }

func (f *fakeSTT) Transcribe(_ context.Context, va *message.ValidatedAudio, _ transcriber.Options) (*transcriber.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPath = va.Path
	if _, err := os.Stat(va.Path); err == nil {
		f.sawFile = true
	}
	if f.err != nil {
		return nil, f.err
	}
	return &transcriber.Result{Text: f.text, Language: f.lang}, nil
}

type stubResponder struct {
	name    string
	answer  string
	err     error
	calls   int
	history []message.Turn
}

func (s *stubResponder) Name() string { return s.name }

func (s *stubResponder) Respond(_ context.Context, _ string, h []message.Turn) (string, error) {
	s.calls++
	s.history = h
	return s.answer, s.err
}

type stubSynth struct {
	err error
}

func (s *stubSynth) Name() string { return "stubvoice" }
func (s *stubSynth) Close() error { return nil }

func (s *stubSynth) Synthesize(context.Context, string, tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tts.SynthesizeResult{Audio: []byte("ID3fake"), ContentType: "audio/mpeg"}, nil
}

type harness struct {
	orch     *Orchestrator
	stt      *fakeSTT
	spoolDir string
	history  *history.Memory
	audioDir string
}

type harnessOpts struct {
	responders []*stubResponder
	synth      *stubSynth
	maxBytes   int64
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.maxBytes == 0 {
		opts.maxBytes = 1 << 20
	}

	spoolDir := t.TempDir()
	spool, err := intake.NewSpool(spoolDir)
	require.NoError(t, err)

	stt := &fakeSTT{text: "Kargo ne zaman gelir?", lang: "tr"}
	gw := transcriber.NewGateway(stt, transcriber.GatewayConfig{Timeout: time.Second, Language: "tr"})

	candidates := make([]responder.Responder, 0, len(opts.responders))
	for _, r := range opts.responders {
		candidates = append(candidates, r)
	}
	chain := responder.NewChain(candidates, rules.New(), time.Second)

	hist := history.NewMemory(10, time.Hour)

	h := &harness{stt: stt, spoolDir: spoolDir, history: hist}
	deps := Deps{
		Validator:    intake.NewValidator(opts.maxBytes),
		Spool:        spool,
		Transcriber:  gw,
		Answerer:     chain,
		History:      hist,
		HistoryTurns: 5,
		Language:     "tr",
	}
	if opts.synth != nil {
		h.audioDir = t.TempDir()
		store, err := audiostore.NewLocal(h.audioDir, "")
		require.NoError(t, err)
		deps.Voice = tts.NewGateway([]tts.Synthesizer{opts.synth}, store, time.Second)
	}
	h.orch = New(deps)
	return h
}

func wavUpload() *message.AudioSubmission {
	data := audio.PCMToWAV(make([]byte, 3200), audio.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16})
	return &message.AudioSubmission{Data: data, Filename: "question.wav", Size: int64(len(data))}
}

func assertSpoolEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "spooled uploads must be removed")
}

func TestHandle_RoundTrip(t *testing.T) {
	together := &stubResponder{name: "together", answer: "Siparişiniz yarın teslim edilecek."}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{together}, synth: &stubSynth{}})

	res := h.orch.Handle(context.Background(), &message.Request{ID: "r1", SessionID: "s1", Audio: wavUpload()})
	require.True(t, res.Ok(), "%v", res.Failure)

	resp := res.Value
	assert.Equal(t, "Kargo ne zaman gelir?", resp.TranscribedText)
	assert.Equal(t, "Siparişiniz yarın teslim edilecek.", resp.AssistantResponse)
	require.NotNil(t, resp.ResponseAudioURL)
	assert.True(t, strings.HasPrefix(*resp.ResponseAudioURL, "/responses/"))
	assert.True(t, strings.HasSuffix(*resp.ResponseAudioURL, ".mp3"))

	assert.Equal(t, []message.Stage{
		message.StageReceived, message.StageValidated, message.StageTranscribed,
		message.StageAnswered, message.StageSynthesized, message.StageCompleted,
	}, resp.Status.Stages)
	assert.Equal(t, "together", resp.Status.Provider)
	assert.Equal(t, "stubvoice", resp.Status.VoiceProvider)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Len(t, wire, 3)
	assert.Equal(t, "Kargo ne zaman gelir?", wire["transcribed_text"])

	assert.True(t, h.stt.sawFile)
	assertSpoolEmpty(t, h.spoolDir)

	stored, err := os.ReadDir(h.audioDir)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestHandle_RejectsOversizedBeforeTranscription(t *testing.T) {
	h := newHarness(t, harnessOpts{maxBytes: 100})

	res := h.orch.Handle(context.Background(), &message.Request{Audio: wavUpload()})
	require.False(t, res.Ok())
	assert.Equal(t, outcome.KindInvalidInput, res.Failure.Kind)
	assert.Equal(t, outcome.ReasonTooLarge, res.Failure.Reason)
	assert.Equal(t, 0, h.stt.calls)
	assertSpoolEmpty(t, h.spoolDir)
}

func TestHandle_RejectsUnsupportedFormat(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	sub := &message.AudioSubmission{Data: []byte("just some text, not audio"), Filename: "note.txt", Size: 25}
	res := h.orch.Handle(context.Background(), &message.Request{Audio: sub})
	require.False(t, res.Ok())
	assert.Equal(t, outcome.ReasonUnsupportedFormat, res.Failure.Reason)
	assert.Equal(t, 0, h.stt.calls)
}

func TestHandle_RejectsMismatchedContent(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	sub := &message.AudioSubmission{Data: []byte("just some text, not audio"), Filename: "fake.wav", Size: 25}
	res := h.orch.Handle(context.Background(), &message.Request{Audio: sub})
	require.False(t, res.Ok())
	assert.Equal(t, outcome.KindInvalidInput, res.Failure.Kind)
	assert.Equal(t, 0, h.stt.calls)
}

func TestHandle_TranscriptionFailureRemovesUpload(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.stt.err = errors.New("connection refused")

	res := h.orch.Handle(context.Background(), &message.Request{Audio: wavUpload()})
	require.False(t, res.Ok())
	assert.Equal(t, outcome.KindProviderUnavailable, res.Failure.Kind)
	assert.NotContains(t, res.Failure.Message, h.spoolDir)
	assertSpoolEmpty(t, h.spoolDir)
}

func TestHandle_SecondaryAnswersWhenPrimaryFails(t *testing.T) {
	primary := &stubResponder{name: "together", err: &responder.StatusError{Provider: "together", StatusCode: 429}}
	secondary := &stubResponder{name: "huggingface", answer: "Kargonuz yolda."}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{primary, secondary}})

	res := h.orch.Handle(context.Background(), &message.Request{Audio: wavUpload()})
	require.True(t, res.Ok())
	assert.Equal(t, "Kargonuz yolda.", res.Value.AssistantResponse)
	assert.Equal(t, "huggingface", res.Value.Status.Provider)
	require.Len(t, res.Value.Status.Attempts, 2)
	assert.Equal(t, "quota", res.Value.Status.Attempts[0].Outcome)
	assert.Equal(t, "ok", res.Value.Status.Attempts[1].Outcome)
}

func TestHandle_RuleFallbackWhenAllProvidersFail(t *testing.T) {
	primary := &stubResponder{name: "together", err: errors.New("boom")}
	secondary := &stubResponder{name: "huggingface", err: errors.New("boom")}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{primary, secondary}})

	res := h.orch.Handle(context.Background(), &message.Request{Audio: wavUpload()})
	require.True(t, res.Ok())
	assert.Contains(t, strings.ToLower(res.Value.AssistantResponse), "kargo")
	assert.Equal(t, "rules", res.Value.Status.Provider)
	assert.Equal(t, message.StageCompleted, res.Value.Status.Final)
	assert.Nil(t, res.Value.ResponseAudioURL)
}

func TestHandle_SynthesisFailureIsNotFatal(t *testing.T) {
	r := &stubResponder{name: "together", answer: "Tamam."}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{r}, synth: &stubSynth{err: errors.New("quota")}})

	res := h.orch.Handle(context.Background(), &message.Request{Audio: wavUpload()})
	require.True(t, res.Ok())
	assert.Nil(t, res.Value.ResponseAudioURL)
	assert.Equal(t, "Tamam.", res.Value.AssistantResponse)
	assert.False(t, res.Value.Status.Reached(message.StageSynthesized))
	assert.Equal(t, message.StageCompleted, res.Value.Status.Final)

	body, err := json.Marshal(res.Value)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"response_audio_url":null`)
}

func TestHandle_EmptyTranscriptGetsCannedAnswer(t *testing.T) {
	r := &stubResponder{name: "together", answer: "unused"}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{r}})
	h.stt.text = "   "

	res := h.orch.Handle(context.Background(), &message.Request{Audio: wavUpload()})
	require.True(t, res.Ok())
	assert.Equal(t, responder.EmptyInputAnswer, res.Value.AssistantResponse)
	assert.Equal(t, 0, r.calls)
}

func TestHandle_TextRequestSkipsIntake(t *testing.T) {
	r := &stubResponder{name: "together", answer: "Merhaba!"}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{r}})

	res := h.orch.Handle(context.Background(), &message.Request{Text: "Selam"})
	require.True(t, res.Ok())
	assert.Equal(t, "Selam", res.Value.TranscribedText)
	assert.Equal(t, "tr", res.Value.Language)
	assert.Equal(t, 0, h.stt.calls)
	assert.False(t, res.Value.Status.Reached(message.StageValidated))
}

func TestHandle_HistoryFeedsLaterTurns(t *testing.T) {
	r := &stubResponder{name: "together", answer: "Yardımcı olayım."}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{r}})
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.True(t, h.orch.Handle(ctx, &message.Request{SessionID: "s1", Text: "ilk soru", ReceivedAt: t0}).Ok())
	assert.Empty(t, r.history)

	require.True(t, h.orch.Handle(ctx, &message.Request{SessionID: "s1", Text: "ikinci soru", ReceivedAt: t0.Add(time.Minute)}).Ok())
	require.Len(t, r.history, 1)
	assert.Equal(t, "ilk soru", r.history[0].Transcript)
	assert.Equal(t, "Yardımcı olayım.", r.history[0].Answer)

	turns, err := h.history.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestHandle_NoSessionNoHistory(t *testing.T) {
	r := &stubResponder{name: "together", answer: "Tamam."}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{r}})

	require.True(t, h.orch.Handle(context.Background(), &message.Request{Text: "soru"}).Ok())
	turns, err := h.history.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHandle_CanceledContext(t *testing.T) {
	r := &stubResponder{name: "together", answer: "Tamam."}
	h := newHarness(t, harnessOpts{responders: []*stubResponder{r}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.orch.Handle(ctx, &message.Request{Audio: wavUpload()})
	require.False(t, res.Ok())
	assert.Equal(t, outcome.ReasonCanceled, res.Failure.Reason)
	assert.Equal(t, 0, h.stt.calls)
	assert.Equal(t, 0, r.calls)
	assertSpoolEmpty(t, h.spoolDir)
}

func TestHandle_NilHistoryUsesNop(t *testing.T) {
	chain := responder.NewChain(nil, rules.New(), time.Second)
	o := New(Deps{Validator: intake.NewValidator(1 << 20), Answerer: chain, Language: "tr"})

	res := o.Handle(context.Background(), &message.Request{SessionID: "s", Text: "iade etmek istiyorum"})
	require.True(t, res.Ok())
	assert.Equal(t, "rules", res.Value.Status.Provider)
	assert.False(t, o.VoiceEnabled())
}
