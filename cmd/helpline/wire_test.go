package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/helpline/internal/audiostore"
	"github.com/nadzzz/helpline/internal/config"
	"github.com/nadzzz/helpline/internal/history"
	"github.com/nadzzz/helpline/internal/intake"
	"github.com/nadzzz/helpline/internal/message"
)

func names[T interface{ Name() string }](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name()
	}
	return out
}

func TestBuildResponders_SkipsMissingCredentials(t *testing.T) {
	cfg := config.ResponderConfig{
		Providers:   []string{"together", "huggingface", "openai", "ollama", "rules", "bogus"},
		Together:    config.ChatAPIConfig{APIKey: "tg", Model: "llama"},
		HuggingFace: config.HuggingFaceConfig{APIKey: ""},
		Ollama:      config.OllamaConfig{Endpoint: "http://localhost:11434/api/chat"},
	}
	assert.Equal(t, []string{"together", "ollama"}, names(buildResponders(cfg)))
}

func TestBuildResponders_KeepsOrder(t *testing.T) {
	cfg := config.ResponderConfig{
		Providers:   []string{"HuggingFace", " together "},
		Together:    config.ChatAPIConfig{APIKey: "tg"},
		HuggingFace: config.HuggingFaceConfig{APIKey: "hf"},
	}
	assert.Equal(t, []string{"huggingface", "together"}, names(buildResponders(cfg)))
}

func TestBuildSynthesizers(t *testing.T) {
	cfg := config.TTSConfig{
		Providers:  []string{"elevenlabs", "openai", "piper"},
		ElevenLabs: config.ElevenLabsConfig{APIKey: ""},
		OpenAI:     config.OpenAITTSConfig{APIKey: "sk"},
		Piper:      config.PiperConfig{Endpoint: "localhost:10200"},
	}
	assert.Equal(t, []string{"openai", "piper"}, names(buildSynthesizers(cfg)))
}

func TestBuildTranscriber(t *testing.T) {
	ctx := context.Background()

	stt, err := buildTranscriber(ctx, config.TranscriberConfig{Backend: "whisper", Whisper: config.WhisperConfig{Endpoint: "http://localhost:9000"}})
	require.NoError(t, err)
	assert.Equal(t, "whisper", stt.Name())

	_, err = buildTranscriber(ctx, config.TranscriberConfig{Backend: "openai"})
	assert.Error(t, err, "openai backend needs a key")

	_, err = buildTranscriber(ctx, config.TranscriberConfig{Backend: "vosk"})
	assert.Error(t, err)
}

func TestBuildHistory(t *testing.T) {
	ctx := context.Background()

	h, err := buildHistory(ctx, config.HistoryConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, history.Nop{}, h)

	h, err = buildHistory(ctx, config.HistoryConfig{Backend: "memory", MaxTurns: 5})
	require.NoError(t, err)
	assert.IsType(t, &history.Memory{}, h)

	mr := miniredis.RunT(t)
	h, err = buildHistory(ctx, config.HistoryConfig{Backend: "redis", MaxTurns: 5, Redis: config.RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	defer h.Close()
	assert.IsType(t, &history.Redis{}, h)
}

func TestJanitor_Sweep(t *testing.T) {
	uploads := t.TempDir()
	spool, err := intake.NewSpool(uploads)
	require.NoError(t, err)
	stale := filepath.Join(uploads, "stale.wav")
	require.NoError(t, os.WriteFile(stale, []byte("RIFF"), 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	store, err := audiostore.NewLocal(t.TempDir(), "")
	require.NoError(t, err)
	obj, err := store.Put(context.Background(), []byte("ID3"), ".mp3", "audio/mpeg")
	require.NoError(t, err)

	mem := history.NewMemory(5, time.Nanosecond)
	require.NoError(t, mem.Append(context.Background(), "s", message.Turn{Transcript: "q", Answer: "a", Timestamp: time.Now()}))
	time.Sleep(time.Millisecond)

	j := &janitor{
		spool:       spool,
		uploadTTL:   10 * time.Minute,
		store:       store,
		responseTTL: 24 * time.Hour,
		history:     mem,
	}
	j.sweep(context.Background())

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale upload should be removed")

	rc, _, err := store.Open(context.Background(), obj.Name)
	require.NoError(t, err, "fresh response should be kept")
	rc.Close()

	turns, err := mem.Recent(context.Background(), "s", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
