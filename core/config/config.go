// Package config centralizes environment-driven settings for the triage
// service. Call [Load] once at startup; the binary loads a local .env file
// first via godotenv autoload, so development overrides live next to the code.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings holds every tunable the service reads from the environment.
type Settings struct {
	// Addr is the HTTP listen address.
	Addr string

	// OpenAIAPIKey authenticates against the chat completions endpoint.
	// OpenAIBaseURL may point at any OpenAI-compatible server.
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Model profile assignments. Classification handles routing and
	// extraction (small, fast), Interview drives question generation, and
	// Clinical handles triage assessment and the final response (large).
	ClassificationModel string
	InterviewModel      string
	ClinicalModel       string

	// DatabaseURL is the Postgres connection string for the session store.
	// When empty the service falls back to the in-memory store.
	DatabaseURL string

	// DirectoryEndpoint is the provider directory URL the locator fetches.
	// When empty the locator degrades to search guidance text.
	DirectoryEndpoint string

	// LLMTimeout bounds every provider call, including streaming generation.
	LLMTimeout time.Duration

	// Conversation compaction thresholds: the first summary is produced at
	// CompactFirstThreshold stored messages, then refreshed every time the
	// count grows past CompactRepeatThreshold.
	CompactFirstThreshold  int
	CompactRepeatThreshold int

	// Prompt window shape: once more than WindowMinMessages are stored and a
	// summary exists, prompts carry the summary plus the last
	// WindowTailMessages messages.
	WindowMinMessages  int
	WindowTailMessages int

	// Token pacing delays for the SSE stream.
	TokenPacing  time.Duration
	ReplayPacing time.Duration

	// MaxSessionMessages caps how many messages a session accepts before the
	// turn API rejects further input.
	MaxSessionMessages int
}

// Load reads settings from the environment, applying defaults for anything
// unset. It never fails: a missing API key surfaces later as a provider
// error on the first LLM call, which keeps local development with fake
// providers friction-free.
func Load() Settings {
	return Settings{
		Addr:          envString("VAIDYA_ADDR", ":8080"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_API_BASE_URL"),

		ClassificationModel: envString("VAIDYA_CLASSIFICATION_MODEL", "gpt-4o-mini"),
		InterviewModel:      envString("VAIDYA_INTERVIEW_MODEL", "gpt-4o-mini"),
		ClinicalModel:       envString("VAIDYA_CLINICAL_MODEL", "gpt-4o"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		DirectoryEndpoint: os.Getenv("VAIDYA_DIRECTORY_ENDPOINT"),

		LLMTimeout: envDuration("VAIDYA_LLM_TIMEOUT", 60*time.Second),

		CompactFirstThreshold:  envInt("VAIDYA_COMPACT_FIRST_THRESHOLD", 20),
		CompactRepeatThreshold: envInt("VAIDYA_COMPACT_REPEAT_THRESHOLD", 40),

		WindowMinMessages:  envInt("VAIDYA_WINDOW_MIN_MESSAGES", 12),
		WindowTailMessages: envInt("VAIDYA_WINDOW_TAIL_MESSAGES", 10),

		TokenPacing:  envDuration("VAIDYA_TOKEN_PACING", time.Millisecond),
		ReplayPacing: envDuration("VAIDYA_REPLAY_PACING", 5*time.Millisecond),

		MaxSessionMessages: envInt("VAIDYA_MAX_SESSION_MESSAGES", 50),
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
