// Package orchestrator runs one request through the pipeline:
//
//	Received → Validated → Transcribed → Answered → (Synthesized) → Completed
//
// Validation and transcription failures are fatal. Answer generation is fatal
// only when the whole responder chain, rule fallback included, fails.
// Synthesis failures are logged and the request completes without audio.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/helpline/internal/history"
	"github.com/nadzzz/helpline/internal/intake"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
	"github.com/nadzzz/helpline/internal/responder"
)

// Transcriber is the speech-to-text gateway.
type Transcriber interface {
	Transcribe(ctx context.Context, audio *message.ValidatedAudio, languageHint string) outcome.Result[message.Transcript]
}

// Answerer is the responder chain.
type Answerer interface {
	Respond(ctx context.Context, text string, history []message.Turn) outcome.Result[responder.Answer]
}

// Voice is the synthesis gateway.
type Voice interface {
	Synthesize(ctx context.Context, text, language string) outcome.Result[message.AudioRef]
}

// Deps wires the orchestrator. Voice, Spool and History may be nil.
type Deps struct {
	Validator   *intake.Validator
	Spool       *intake.Spool
	Transcriber Transcriber
	Answerer    Answerer
	Voice       Voice
	History     history.Store

	// HistoryTurns bounds how many prior turns are given to the responder.
	HistoryTurns int

	// Language is used for text requests that carry no language.
	Language string
}

// Orchestrator composes the gateways.
type Orchestrator struct {
	validator    *intake.Validator
	spool        *intake.Spool
	stt          Transcriber
	answers      Answerer
	voice        Voice
	history      history.Store
	historyTurns int
	language     string
	now          func() time.Time
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	h := d.History
	if h == nil {
		h = history.Nop{}
	}
	return &Orchestrator{
		validator:    d.Validator,
		spool:        d.Spool,
		stt:          d.Transcriber,
		answers:      d.Answerer,
		voice:        d.Voice,
		history:      h,
		historyTurns: d.HistoryTurns,
		language:     d.Language,
		now:          time.Now,
	}
}

// VoiceEnabled reports whether replies are synthesized.
func (o *Orchestrator) VoiceEnabled() bool { return o.voice != nil }

// run tracks stage transitions for one request.
type run struct {
	status message.Status
	log    *slog.Logger
}

func (r *run) advance(stage message.Stage) {
	r.status.Stages = append(r.status.Stages, stage)
	r.status.Final = stage
	r.log.Info("stage reached", "stage", stage)
}

func (r *run) fail(stage string, f *outcome.Failure) outcome.Result[*message.AssistantResponse] {
	r.status.Stages = append(r.status.Stages, message.StageErrored)
	r.status.Final = message.StageErrored
	r.log.Error("request failed",
		"during", stage,
		"kind", f.Kind,
		"reason", f.Reason,
		"error", f)
	return outcome.FromFailure[*message.AssistantResponse](f)
}

func (r *run) canceled(stage string, err error) outcome.Result[*message.AssistantResponse] {
	return r.fail(stage, outcome.NewFailure(outcome.KindInternalFailure, outcome.ReasonCanceled, "request canceled", err))
}

// Handle runs the pipeline for one request. The transient upload is removed
// before Handle returns on every path.
func (o *Orchestrator) Handle(ctx context.Context, req *message.Request) outcome.Result[*message.AssistantResponse] {
	r := &run{log: slog.With("request_id", req.ID, "session_id", req.SessionID)}
	r.advance(message.StageReceived)

	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = o.now()
	}

	var transcript message.Transcript
	if req.HasAudio() {
		res := o.validator.Validate(req.Audio)
		if !res.Ok() {
			return r.fail("validate", res.Failure)
		}
		r.advance(message.StageValidated)

		va := res.Value
		if o.spool != nil {
			if err := o.spool.Save(va); err != nil {
				return r.fail("spool", outcome.NewFailure(outcome.KindInternalFailure, outcome.ReasonNone,
					"could not store upload", err))
			}
			defer o.spool.Remove(va)
		}

		if err := ctx.Err(); err != nil {
			return r.canceled("transcribe", err)
		}
		tr := o.stt.Transcribe(ctx, va, req.Language)
		if o.spool != nil {
			o.spool.Remove(va)
		}
		if !tr.Ok() {
			return r.fail("transcribe", tr.Failure)
		}
		transcript = tr.Value
	} else {
		lang := req.Language
		if lang == "" {
			lang = o.language
		}
		transcript = message.Transcript{Text: req.Text, Language: lang}
	}
	r.advance(message.StageTranscribed)

	if err := ctx.Err(); err != nil {
		return r.canceled("answer", err)
	}
	ans := o.answers.Respond(ctx, transcript.Text, o.recentTurns(ctx, r, req.SessionID))
	if !ans.Ok() {
		return r.fail("answer", ans.Failure)
	}
	r.status.Provider = ans.Value.Provider
	r.status.Attempts = ans.Value.Attempts
	r.advance(message.StageAnswered)

	if err := ctx.Err(); err != nil {
		return r.canceled("synthesize", err)
	}

	// Synthesis and the history append are independent; both are joined
	// before the response is assembled.
	var (
		g     errgroup.Group
		audio *message.AudioRef
	)
	if o.voice != nil {
		g.Go(func() error {
			res := o.voice.Synthesize(ctx, ans.Value.Text, transcript.Language)
			if !res.Ok() {
				r.log.Warn("synthesis failed, replying with text only",
					"kind", res.Failure.Kind,
					"error", res.Failure)
				return nil
			}
			ref := res.Value
			audio = &ref
			return nil
		})
	}
	if req.SessionID != "" {
		g.Go(func() error {
			err := o.history.Append(ctx, req.SessionID, message.Turn{
				Transcript: transcript.Text,
				Answer:     ans.Value.Text,
				Timestamp:  req.ReceivedAt,
			})
			if err != nil {
				r.log.Warn("history append failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := &message.AssistantResponse{
		TranscribedText:   transcript.Text,
		AssistantResponse: ans.Value.Text,
		Language:          transcript.Language,
	}
	if audio != nil {
		r.advance(message.StageSynthesized)
		r.status.VoiceProvider = audio.Provider
		url := audio.URL
		resp.ResponseAudioURL = &url
		resp.Audio = audio
	}
	r.advance(message.StageCompleted)
	resp.Status = r.status

	r.log.Info("request completed",
		"provider", r.status.Provider,
		"attempts", len(r.status.Attempts),
		"voice", r.status.VoiceProvider != "")
	return outcome.OK(resp)
}

// recentTurns loads history for the session. Missing history is not an error.
func (o *Orchestrator) recentTurns(ctx context.Context, r *run, sessionID string) []message.Turn {
	if sessionID == "" {
		return nil
	}
	turns, err := o.history.Recent(ctx, sessionID, o.historyTurns)
	if err != nil {
		r.log.Warn("history unavailable", "error", err)
		return nil
	}
	return turns
}
