// Package message defines the core data types flowing through the helpline pipeline.
package message

import (
	"time"
)

// Stage is a state of the per-request pipeline.
//
//	Received → Validated → Transcribed → Answered → (Synthesized) → Completed
//
// Errored is terminal and reachable from any stage.
type Stage string

const (
	StageReceived    Stage = "received"
	StageValidated   Stage = "validated"
	StageTranscribed Stage = "transcribed"
	StageAnswered    Stage = "answered"
	StageSynthesized Stage = "synthesized"
	StageCompleted   Stage = "completed"
	StageErrored     Stage = "errored"
)

// AudioSubmission is an uploaded audio clip as received from the client.
// It is never mutated after intake.
type AudioSubmission struct {
	// Data is the raw uploaded payload.
	Data []byte

	// Filename is the client-declared file name. Never used as a storage path.
	Filename string

	// MIMEType is the client-declared content type of the upload part.
	MIMEType string

	// Size is the payload size in bytes.
	Size int64
}

// ValidatedAudio is a submission that passed intake validation.
type ValidatedAudio struct {
	Submission *AudioSubmission

	// MIMEType is the sniffed content type (e.g. "audio/wav").
	MIMEType string

	// Ext is the normalised extension of the declared filename, including the dot.
	Ext string

	// Path is the transient spool location. Empty if the audio was not spooled.
	Path string
}

// Transcript is the output of speech-to-text. Text may be empty (silence).
type Transcript struct {
	Text string

	// Language is the ISO-639-1 code detected or declared for the audio.
	Language string

	// Source is the filename of the submission the transcript came from.
	Source string
}

// Turn is one question/answer exchange within a session.
type Turn struct {
	SessionID  string    `json:"session_id,omitempty"`
	Transcript string    `json:"transcript"`
	Answer     string    `json:"answer"`
	Timestamp  time.Time `json:"timestamp"`
}

// AudioRef points at synthesized audio that can be fetched by the client.
type AudioRef struct {
	// URL is the client-facing location (e.g. "/responses/<name>.mp3").
	URL string

	// Name is the generated object name.
	Name string

	// ContentType is the MIME type of the stored audio.
	ContentType string

	// Provider is the TTS backend that produced the audio.
	Provider string
}

// Attempt records one try against a responder in the provider chain.
type Attempt struct {
	Provider string        `json:"provider"`
	Outcome  string        `json:"outcome"` // "ok", "timeout", "auth", "quota", "error"
	Duration time.Duration `json:"duration"`
}

// Status reports which stages a request went through.
type Status struct {
	Stages []Stage
	Final  Stage

	// Provider is the responder that produced the answer.
	Provider string

	// Attempts lists every responder tried, in order.
	Attempts []Attempt

	// VoiceProvider is the TTS backend that produced audio, if any.
	VoiceProvider string
}

// Succeeded reports whether the request reached Completed.
func (s Status) Succeeded() bool { return s.Final == StageCompleted }

// Reached reports whether the request passed through the given stage.
func (s Status) Reached(stage Stage) bool {
	for _, st := range s.Stages {
		if st == stage {
			return true
		}
	}
	return false
}

// AssistantResponse is the outcome of one pipeline run.
//
// The JSON form is exactly the public wire shape; Status stays server-side.
type AssistantResponse struct {
	TranscribedText   string  `json:"transcribed_text"`
	AssistantResponse string  `json:"assistant_response"`
	ResponseAudioURL  *string `json:"response_audio_url"`

	Language string    `json:"-"`
	Status   Status    `json:"-"`
	Audio    *AudioRef `json:"-"`
}

// Request is one inbound ask, from either the audio or the text endpoint.
type Request struct {
	// ID correlates logs (e.g. the HTTP request id).
	ID string

	// SessionID keys conversation history. Empty disables history for the request.
	SessionID string

	// Audio is set for voice requests.
	Audio *AudioSubmission

	// Text is set for text requests and bypasses intake and transcription.
	Text string

	// Language overrides the configured transcription language hint.
	Language string

	// ReceivedAt is when the request entered the pipeline.
	ReceivedAt time.Time
}

// HasAudio reports whether the request carries an audio submission.
func (r *Request) HasAudio() bool {
	return r.Audio != nil
}
