// Package config loads run settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/deusflow/hunews/internal/archive"
	"github.com/joho/godotenv"
)

type Config struct {
	// Gemini settings
	GeminiAPIKey      string
	GeminiModel       string
	MaxGeminiRequests int // model calls allowed per run (0 = unlimited)
	SynthesisTimeout  time.Duration
	SynthesisRetries  int // retries after the first attempt, transport failures only
	RetryDelay        time.Duration

	// Source settings
	SourcesConfigPath string
	SourceTimeout     time.Duration
	SummaryMaxRunes   int
	UserAgent         string
	EnrichSummaries   bool // fill empty summaries of scraped articles from the article page

	// Archive settings
	DataDir  string
	Timezone string

	// Reader settings
	ArchiveBaseURL      string
	ProbeLookbackDays   int
	ProbeBatchSize      int
	SearchMaxCandidates int
	SearchDebounce      time.Duration

	// App settings
	Debug           bool
	LogFormat       string // "text" or "json"
	RunTimeout      time.Duration
	MetricsTextfile string

	// Debug artifacts, written only when set
	RawArticlesPath    string // collected articles of the last run
	SynthesisErrorPath string // raw model answer that failed validation
}

// Load reads settings from the environment. A .env file in the working
// directory is loaded first; variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		GeminiModel:         "gemini-2.5-flash",
		MaxGeminiRequests:   2,
		SynthesisTimeout:    3 * time.Minute,
		SynthesisRetries:    1,
		RetryDelay:          5 * time.Second,
		SourcesConfigPath:   "configs/sources.yaml",
		SourceTimeout:       30 * time.Second,
		SummaryMaxRunes:     500,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		DataDir:             "data",
		Timezone:            "Europe/Budapest",
		ProbeLookbackDays:   30,
		ProbeBatchSize:      5,
		SearchMaxCandidates: 10,
		SearchDebounce:      300 * time.Millisecond,
		LogFormat:           "text",
		RunTimeout:          10 * time.Minute,
	}

	// Secret is only ever read from the environment
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG_PATH", cfg.SourcesConfigPath)
	cfg.DataDir = getEnvOrDefault("DATA_DIR", cfg.DataDir)
	cfg.Timezone = getEnvOrDefault("TIMEZONE", cfg.Timezone)
	cfg.UserAgent = getEnvOrDefault("USER_AGENT", cfg.UserAgent)
	cfg.ArchiveBaseURL = strings.TrimRight(os.Getenv("ARCHIVE_BASE_URL"), "/")
	cfg.MetricsTextfile = os.Getenv("METRICS_TEXTFILE")
	cfg.RawArticlesPath = os.Getenv("RAW_ARTICLES_PATH")
	cfg.SynthesisErrorPath = os.Getenv("SYNTHESIS_ERROR_PATH")
	cfg.LogFormat = strings.ToLower(getEnvOrDefault("LOG_FORMAT", cfg.LogFormat))

	cfg.MaxGeminiRequests = getEnvIntOrDefault("MAX_GEMINI_REQUESTS", cfg.MaxGeminiRequests)
	cfg.SynthesisRetries = getEnvIntOrDefault("SYNTHESIS_RETRIES", cfg.SynthesisRetries)
	cfg.SummaryMaxRunes = getEnvIntOrDefault("SUMMARY_MAX_RUNES", cfg.SummaryMaxRunes)
	cfg.ProbeLookbackDays = getEnvIntOrDefault("PROBE_LOOKBACK_DAYS", cfg.ProbeLookbackDays)
	cfg.ProbeBatchSize = getEnvIntOrDefault("PROBE_BATCH_SIZE", cfg.ProbeBatchSize)
	cfg.SearchMaxCandidates = getEnvIntOrDefault("SEARCH_MAX_CANDIDATES", cfg.SearchMaxCandidates)

	cfg.SynthesisTimeout = getEnvDurationOrDefault("SYNTHESIS_TIMEOUT", cfg.SynthesisTimeout)
	cfg.RetryDelay = getEnvDurationOrDefault("RETRY_DELAY", cfg.RetryDelay)
	cfg.SourceTimeout = getEnvDurationOrDefault("SOURCE_TIMEOUT", cfg.SourceTimeout)
	cfg.RunTimeout = getEnvDurationOrDefault("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.SearchDebounce = getEnvDurationOrDefault("SEARCH_DEBOUNCE", cfg.SearchDebounce)

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}
	if v := os.Getenv("ENRICH_SUMMARIES"); v == "true" {
		cfg.EnrichSummaries = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// Validate checks settings shared by every command. The API key is checked
// separately by ValidateForRun because read-only commands do not need it.
func (c *Config) Validate() error {
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("SOURCE_TIMEOUT must be positive")
	}
	if c.RunTimeout < c.SourceTimeout {
		return fmt.Errorf("RUN_TIMEOUT (%s) must not be shorter than SOURCE_TIMEOUT (%s)", c.RunTimeout, c.SourceTimeout)
	}
	if c.SynthesisRetries < 0 {
		return fmt.Errorf("SYNTHESIS_RETRIES must not be negative")
	}
	if c.MaxGeminiRequests < 0 {
		return fmt.Errorf("MAX_GEMINI_REQUESTS must not be negative")
	}
	if c.MaxGeminiRequests > 0 && c.MaxGeminiRequests < c.SynthesisRetries+1 {
		return fmt.Errorf("MAX_GEMINI_REQUESTS (%d) leaves no room for %d retries", c.MaxGeminiRequests, c.SynthesisRetries)
	}
	if c.SummaryMaxRunes <= 0 {
		return fmt.Errorf("SUMMARY_MAX_RUNES must be positive")
	}
	if c.ProbeLookbackDays <= 0 || c.ProbeBatchSize <= 0 {
		return fmt.Errorf("PROBE_LOOKBACK_DAYS and PROBE_BATCH_SIZE must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json'")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	for key, path := range map[string]string{
		"RAW_ARTICLES_PATH":    c.RawArticlesPath,
		"SYNTHESIS_ERROR_PATH": c.SynthesisErrorPath,
	} {
		if path != "" && archive.Reserved(filepath.Base(path)) {
			return fmt.Errorf("%s %q collides with an archive file name", key, path)
		}
	}
	return nil
}

// ValidateForRun adds the checks needed by the synthesis pipeline.
func (c *Config) ValidateForRun() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

// Location returns the configured time zone, used to decide the archive date.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
