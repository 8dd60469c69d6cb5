package main

import (
	"os"
	"strconv"
	"strings"
)

// Config carries the process-wide settings the Engine reads at startup
// (§6.5). Every field resolves from an environment variable rather than a
// config file: the teacher's own `$include`-merge YAML/JSON5 loader relied
// on packages that don't exist in this module and served a chat-bot
// process's channel/plugin registration needs this engine doesn't have
// (see DESIGN.md's internal/config entry), so settings here are read
// straight from the environment, matching §6.5's own table of recognised
// variables.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	SecretKey string

	DefaultLLMModel       string
	DefaultLLMTemperature float64

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	BedrockRegion   string

	TTSMaxSegmentChars int
	TTSWorkers         int
	TTSProvider        string
	TTSEdgeVoice       string
	TTSOpenAIAPIKey    string
	TTSOpenAIVoice     string
	TTSElevenAPIKey    string
	TTSElevenVoiceID   string

	S3Bucket        string
	S3PublicBaseURL string

	JWTSecret string

	RateLimitPerSecond float64
	RateLimitBurst     int

	LockSweepCron string

	// DevSQLitePath, when set, backs the outline store (C2) with an
	// embedded SQLite database seeded with a demo course instead of
	// Postgres — for running the preview endpoint and local smoke tests
	// without a database server. Every other component still requires
	// DATABASE_URL.
	DevSQLitePath string
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// loadConfig reads Config from the environment, applying the §6.5 defaults.
func loadConfig() Config {
	return Config{
		HTTPAddr:    envOr("MDFLOW_HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		SecretKey: os.Getenv("SECRET_KEY"),

		DefaultLLMModel:       envOr("DEFAULT_LLM_MODEL", "gpt-4o-mini"),
		DefaultLLMTemperature: envFloatOr("DEFAULT_LLM_TEMPERATURE", 0.7),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		BedrockRegion:   envOr("AWS_REGION", "us-east-1"),

		TTSMaxSegmentChars: envIntOr("TTS_MAX_SEGMENT_CHARS", 300),
		TTSWorkers:         envIntOr("TTS_WORKERS", 4),
		TTSProvider:        envOr("TTS_PROVIDER", "edge"),
		TTSEdgeVoice:       envOr("TTS_EDGE_VOICE", "en-US-AriaNeural"),
		TTSOpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		TTSOpenAIVoice:     envOr("TTS_OPENAI_VOICE", "alloy"),
		TTSElevenAPIKey:    os.Getenv("ELEVENLABS_API_KEY"),
		TTSElevenVoiceID:   envOr("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),

		S3Bucket:        os.Getenv("MDFLOW_AUDIO_BUCKET"),
		S3PublicBaseURL: os.Getenv("MDFLOW_AUDIO_PUBLIC_BASE_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RateLimitPerSecond: envFloatOr("MDFLOW_RATE_LIMIT_RPS", 5.0),
		RateLimitBurst:     envIntOr("MDFLOW_RATE_LIMIT_BURST", 10),

		LockSweepCron: envOr("MDFLOW_LOCK_SWEEP_CRON", "@every 1m"),

		DevSQLitePath: os.Getenv("MDFLOW_DEV_SQLITE_PATH"),
	}
}
