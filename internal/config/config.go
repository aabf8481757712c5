// Package config handles loading and validating the helpline configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the helpline daemon.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Responder   ResponderConfig   `mapstructure:"responder"`
	TTS         TTSConfig         `mapstructure:"tts"`
	Storage     StorageConfig     `mapstructure:"storage"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the health check server settings.
type ServerConfig struct {
	HealthPort     int `mapstructure:"health_port"`
	GRPCHealthPort int `mapstructure:"grpc_health_port"` // 0 disables the gRPC health service
}

// HTTPConfig configures the public HTTP API.
type HTTPConfig struct {
	Port           int             `mapstructure:"port"`
	MaxUploadBytes int64           `mapstructure:"max_upload_bytes"`
	PublicBaseURL  string          `mapstructure:"public_base_url"` // prefix for response_audio_url; empty = relative
	CORSOrigins    []string        `mapstructure:"cors_origins"`
	RateLimits     RateLimitConfig `mapstructure:"rate_limits"`
}

// RateLimitConfig holds per-endpoint request limits, per client IP per minute.
// Zero disables the limit for that endpoint.
type RateLimitConfig struct {
	Ask   int `mapstructure:"ask"`
	Text  int `mapstructure:"text"`
	Files int `mapstructure:"files"`
}

// TranscriberConfig selects and configures the speech-to-text backend.
// Exactly one backend is active per deployment.
type TranscriberConfig struct {
	Backend    string             `mapstructure:"backend"` // "whisper", "openai" or "google"
	Language   string             `mapstructure:"language"`
	Timeout    time.Duration      `mapstructure:"timeout"`
	SampleRate int                `mapstructure:"sample_rate"`
	Channels   int                `mapstructure:"channels"`
	Whisper    WhisperConfig      `mapstructure:"whisper"`
	OpenAI     OpenAISTTConfig    `mapstructure:"openai"`
	Google     GoogleSpeechConfig `mapstructure:"google"`
}

// WhisperConfig holds self-hosted Whisper server settings.
type WhisperConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Type      string `mapstructure:"type"`  // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	Model     string `mapstructure:"model"` // model size: tiny, base, small, medium, large
	VADFilter bool   `mapstructure:"vad_filter"`
}

// OpenAISTTConfig holds OpenAI transcription API settings.
type OpenAISTTConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// GoogleSpeechConfig holds Google Cloud Speech settings. Credentials come from ADC.
type GoogleSpeechConfig struct {
	LanguageCode string `mapstructure:"language_code"` // BCP-47, e.g. "tr-TR"
}

// ResponderConfig configures the ordered language-model provider chain.
type ResponderConfig struct {
	Providers    []string          `mapstructure:"providers"` // tried in order; rule responder is always last
	Timeout      time.Duration     `mapstructure:"timeout"`
	SystemPrompt string            `mapstructure:"system_prompt"`
	Together     ChatAPIConfig     `mapstructure:"together"`
	OpenAI       ChatAPIConfig     `mapstructure:"openai"`
	HuggingFace  HuggingFaceConfig `mapstructure:"huggingface"`
	Ollama       OllamaConfig      `mapstructure:"ollama"`
}

// ChatAPIConfig holds settings for an OpenAI-compatible chat completions API.
type ChatAPIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// HuggingFaceConfig holds Hugging Face Inference API settings.
type HuggingFaceConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// OllamaConfig holds self-hosted LLM settings.
type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// TTSConfig configures the optional voice reply stage.
type TTSConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Providers  []string         `mapstructure:"providers"` // tried in order
	Timeout    time.Duration    `mapstructure:"timeout"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	OpenAI     OpenAITTSConfig  `mapstructure:"openai"`
	Piper      PiperConfig      `mapstructure:"piper"`
}

// ElevenLabsConfig holds ElevenLabs API settings.
type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
}

// OpenAITTSConfig holds OpenAI speech API settings.
type OpenAITTSConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Voice   string `mapstructure:"voice"`
	BaseURL string `mapstructure:"base_url"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints; Endpoint is then the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
}

// StorageConfig configures transient uploads and synthesized audio storage.
type StorageConfig struct {
	UploadDir   string        `mapstructure:"upload_dir"`
	UploadTTL   time.Duration `mapstructure:"upload_ttl"`
	ResponseDir string        `mapstructure:"response_dir"`
	ResponseTTL time.Duration `mapstructure:"response_ttl"`
	Backend     string        `mapstructure:"backend"` // "local" or "s3"
	S3          S3Config      `mapstructure:"s3"`
}

// S3Config holds S3/MinIO settings for synthesized audio.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
	PublicURL string `mapstructure:"public_url"` // optional override of https://<endpoint>/<bucket>
}

// HistoryConfig configures the conversation history store.
type HistoryConfig struct {
	Backend  string        `mapstructure:"backend"` // "none", "memory" or "redis"
	MaxTurns int           `mapstructure:"max_turns"`
	TTL      time.Duration `mapstructure:"ttl"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from .env, config file, environment variables,
// and defaults. If configFile is non-empty it is used directly; otherwise the
// standard search order applies: ./helpline.yaml, ./configs/helpline.yaml,
// /etc/helpline/helpline.yaml.
func Load(configFile string) (*Config, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("helpline")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/helpline")
	}

	// Environment variables: HELPLINE_HTTP_PORT, HELPLINE_TRANSCRIBER_BACKEND, etc.
	v.SetEnvPrefix("HELPLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.resolveSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.grpc_health_port", 0)

	v.SetDefault("http.port", 8000)
	v.SetDefault("http.max_upload_bytes", 16<<20)
	v.SetDefault("http.public_base_url", "")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.rate_limits.ask", 30)
	v.SetDefault("http.rate_limits.text", 60)
	v.SetDefault("http.rate_limits.files", 120)

	v.SetDefault("transcriber.backend", "whisper")
	v.SetDefault("transcriber.language", "${ASR_LANGUAGE:-tr}")
	v.SetDefault("transcriber.timeout", 60*time.Second)
	v.SetDefault("transcriber.sample_rate", 16000)
	v.SetDefault("transcriber.channels", 1)
	v.SetDefault("transcriber.whisper.endpoint", "http://localhost:9000/v1/audio/transcriptions")
	v.SetDefault("transcriber.whisper.type", "openai")
	v.SetDefault("transcriber.whisper.model", "${WHISPER_MODEL:-base}")
	v.SetDefault("transcriber.whisper.vad_filter", false)
	v.SetDefault("transcriber.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("transcriber.openai.model", "whisper-1")
	v.SetDefault("transcriber.google.language_code", "tr-TR")

	v.SetDefault("responder.providers", []string{"together", "huggingface"})
	v.SetDefault("responder.timeout", 60*time.Second)
	v.SetDefault("responder.system_prompt", DefaultSystemPrompt)
	v.SetDefault("responder.together.api_key", "${TOGETHER_API_KEY}")
	v.SetDefault("responder.together.model", "${TOGETHER_MODEL:-meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo}")
	v.SetDefault("responder.together.base_url", "https://api.together.xyz/v1")
	v.SetDefault("responder.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("responder.openai.model", "gpt-4o-mini")
	v.SetDefault("responder.openai.base_url", "")
	v.SetDefault("responder.huggingface.api_key", "${HUGGINGFACE_API_KEY}")
	v.SetDefault("responder.huggingface.model", "${HF_MODEL:-mistralai/Mistral-7B-Instruct-v0.1}")
	v.SetDefault("responder.huggingface.base_url", "https://api-inference.huggingface.co/models")
	v.SetDefault("responder.ollama.endpoint", "http://localhost:11434/api/chat")
	v.SetDefault("responder.ollama.model", "llama3")

	v.SetDefault("tts.enabled", false)
	v.SetDefault("tts.providers", []string{"elevenlabs"})
	v.SetDefault("tts.timeout", 30*time.Second)
	v.SetDefault("tts.elevenlabs.api_key", "${ELEVENLABS_API_KEY}")
	v.SetDefault("tts.elevenlabs.voice_id", "${ELEVENLABS_VOICE_ID:-21m00Tcm4TlvDq8ikWAM}")
	v.SetDefault("tts.elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("tts.elevenlabs.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("tts.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("tts.openai.model", "tts-1")
	v.SetDefault("tts.openai.voice", "alloy")
	v.SetDefault("tts.piper.endpoint", "localhost:10200")

	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.upload_ttl", 10*time.Minute)
	v.SetDefault("storage.response_dir", "responses")
	v.SetDefault("storage.response_ttl", 24*time.Hour)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.s3.access_key", "${S3_ACCESS_KEY}")
	v.SetDefault("storage.s3.secret_key", "${S3_SECRET_KEY}")
	v.SetDefault("storage.s3.secure", true)

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.max_turns", 10)
	v.SetDefault("history.ttl", 24*time.Hour)
	v.SetDefault("history.redis.addr", "localhost:6379")

	v.SetDefault("logging.level", "${LOG_LEVEL:-info}")
	v.SetDefault("logging.format", "json")
}

// DefaultSystemPrompt is the customer-service persona given to chat models.
const DefaultSystemPrompt = "Sen bir e-ticaret müşteri hizmetleri asistanısın. " +
	"Kısa, açık ve çözüm odaklı yanıt ver. " +
	"Gerekirse takip/işlem adımlarını net sırala."

// resolveSecrets expands "${VAR}" references in every string field that may
// carry a credential or an environment-provided default.
func (c *Config) resolveSecrets() {
	refs := []*string{
		&c.Transcriber.Language,
		&c.Transcriber.Whisper.Model,
		&c.Transcriber.OpenAI.APIKey,
		&c.Responder.Together.APIKey,
		&c.Responder.Together.Model,
		&c.Responder.OpenAI.APIKey,
		&c.Responder.HuggingFace.APIKey,
		&c.Responder.HuggingFace.Model,
		&c.TTS.ElevenLabs.APIKey,
		&c.TTS.ElevenLabs.VoiceID,
		&c.TTS.OpenAI.APIKey,
		&c.Storage.S3.AccessKey,
		&c.Storage.S3.SecretKey,
		&c.History.Redis.Password,
		&c.Logging.Level,
	}
	for _, ref := range refs {
		*ref = resolveEnvRef(*ref)
	}
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	switch c.Transcriber.Backend {
	case "whisper", "openai", "google":
	default:
		return fmt.Errorf("unknown transcriber backend %q", c.Transcriber.Backend)
	}
	switch c.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.History.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return fmt.Errorf("http.max_upload_bytes must be positive")
	}
	if c.Transcriber.SampleRate <= 0 || c.Transcriber.Channels <= 0 {
		return fmt.Errorf("transcriber sample_rate and channels must be positive")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var
// value. "${VAR_NAME:-fallback}" yields fallback when the variable is unset or
// empty; a bare "${VAR_NAME}" with no value resolves to the empty string so
// unset credentials read as "not configured".
func resolveEnvRef(val string) string {
	if !strings.HasPrefix(val, "${") || !strings.HasSuffix(val, "}") {
		return val
	}
	ref := val[2 : len(val)-1]
	envKey, fallback, _ := strings.Cut(ref, ":-")
	if envVal := os.Getenv(envKey); envVal != "" {
		return envVal
	}
	return fallback
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
