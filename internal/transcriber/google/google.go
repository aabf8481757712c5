// Package google implements the Transcriber interface using Google Cloud
// Speech-to-Text. Credentials come from Application Default Credentials.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/nadzzz/helpline/internal/audio"
	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
	"github.com/nadzzz/helpline/internal/transcriber"
)

// recognizer is the subset of the speech client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Transcriber sends synchronous recognize requests.
type Transcriber struct {
	client       recognizer
	languageCode string
}

// New creates a Google Cloud Speech transcriber.
func New(ctx context.Context, cfg config.GoogleSpeechConfig) (*Transcriber, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating speech client: %w", err)
	}
	return newWithClient(client, cfg), nil
}

func newWithClient(client recognizer, cfg config.GoogleSpeechConfig) *Transcriber {
	return &Transcriber{client: client, languageCode: cfg.LanguageCode}
}

// Name returns the backend identifier.
func (t *Transcriber) Name() string { return "google" }

// Transcribe converts WAV input to LINEAR16 at the configured rate and
// passes FLAC through. Other containers are rejected as unsupported.
func (t *Transcriber) Transcribe(ctx context.Context, a *message.ValidatedAudio, opts transcriber.Options) (*transcriber.Result, error) {
	rc, content, err := t.prepare(a, opts)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("google recognize: %w", err)
	}

	var (
		parts []string
		lang  string
	)
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
		if lang == "" && r.GetLanguageCode() != "" {
			lang = r.GetLanguageCode()
		}
	}

	return &transcriber.Result{
		Text:     strings.Join(parts, " "),
		Language: baseLanguage(lang),
	}, nil
}

func (t *Transcriber) prepare(a *message.ValidatedAudio, opts transcriber.Options) (*speechpb.RecognitionConfig, []byte, error) {
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               t.languageFor(opts.Language),
		EnableAutomaticPunctuation: true,
	}

	switch a.Ext {
	case ".wav":
		w, err := audio.ParseWAV(a.Submission.Data)
		if err != nil {
			// Both a non-RIFF payload and a compressed WAV end up here.
			return nil, nil, outcome.InvalidInput(outcome.ReasonUnsupportedFormat, "audio could not be decoded", err)
		}
		target := audio.Format{SampleRate: opts.SampleRate, Channels: opts.Channels, BitsPerSample: 16}
		pcm, err := audio.Conform(w, target)
		if err != nil {
			return nil, nil, outcome.InvalidInput(outcome.ReasonUnsupportedFormat, "audio could not be converted", err)
		}
		rc.Encoding = speechpb.RecognitionConfig_LINEAR16
		rc.SampleRateHertz = int32(opts.SampleRate)
		rc.AudioChannelCount = int32(opts.Channels)
		return rc, pcm, nil

	case ".flac":
		rc.Encoding = speechpb.RecognitionConfig_FLAC
		return rc, a.Submission.Data, nil

	default:
		return nil, nil, outcome.InvalidInput(outcome.ReasonUnsupportedFormat,
			"audio format not supported by the speech-to-text backend", nil)
	}
}

// defaultLocales gives the usual region for bases whose code is not also a
// country code. Other bases are passed through; Cloud Speech accepts them.
var defaultLocales = map[string]string{
	"tr": "tr-TR",
	"en": "en-US",
	"de": "de-DE",
	"fr": "fr-FR",
	"es": "es-ES",
	"it": "it-IT",
	"nl": "nl-NL",
	"pt": "pt-BR",
	"ru": "ru-RU",
	"ar": "ar-SA",
	"fa": "fa-IR",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "zh-CN",
	"uk": "uk-UA",
	"el": "el-GR",
	"az": "az-AZ",
}

// languageFor maps an ISO-639-1 hint to a BCP-47 code.
func (t *Transcriber) languageFor(hint string) string {
	switch {
	case hint == "":
		if t.languageCode != "" {
			return t.languageCode
		}
		return "tr-TR"
	case strings.Contains(hint, "-"):
		return hint
	case t.languageCode != "" && strings.HasPrefix(strings.ToLower(t.languageCode), strings.ToLower(hint)+"-"):
		return t.languageCode
	default:
		base := strings.ToLower(hint)
		if locale, ok := defaultLocales[base]; ok {
			return locale
		}
		return base
	}
}

func baseLanguage(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

// Close closes the speech client.
func (t *Transcriber) Close() error { return t.client.Close() }
