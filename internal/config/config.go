package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the hotline server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir   string
	HTTPPort  int
	BaseURL   string // public URL the telephony provider uses for callbacks
	LogLevel  string
	LogFormat string // log output format: "text" or "json"

	SonioxAPIKey     string // speech-to-text
	DeepSeekAPIKey   string // conversation replies
	ElevenLabsAPIKey string // speech synthesis
	VoiceID          string // ElevenLabs voice for synthesized replies

	CleanupInterval time.Duration // how often generated call files are swept
	RetentionMaxAge time.Duration // age after which generated call files are removed
}

// defaults
const (
	defaultDataDir         = "./data"
	defaultHTTPPort        = 8080
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultCleanupInterval = time.Hour
	defaultRetentionMaxAge = 24 * time.Hour
)

// envPrefix is the prefix for all hotline environment variables.
const envPrefix = "ELSCALLS_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults. Provider API keys also
// honor their conventional unprefixed variables (SONIOX_API_KEY,
// DEEPSEEK_API_KEY, ELEVENLABS_API_KEY) so deployments can share keys
// with other tooling.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("elscalls", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for settings and audio storage")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "public base URL for telephony callbacks (e.g., https://hotline.example.com)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.SonioxAPIKey, "soniox-api-key", "", "Soniox API key for speech-to-text")
	fs.StringVar(&cfg.DeepSeekAPIKey, "deepseek-api-key", "", "DeepSeek API key for conversation replies")
	fs.StringVar(&cfg.ElevenLabsAPIKey, "elevenlabs-api-key", "", "ElevenLabs API key for speech synthesis")
	fs.StringVar(&cfg.VoiceID, "voice-id", "", "ElevenLabs voice id for synthesized replies")
	fs.DurationVar(&cfg.CleanupInterval, "cleanup-interval", defaultCleanupInterval, "how often generated call files are swept")
	fs.DurationVar(&cfg.RetentionMaxAge, "retention-max-age", defaultRetentionMaxAge, "age after which generated call files are removed")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var names, first match wins.
	envMap := map[string][]string{
		"data-dir":           {envPrefix + "DATA_DIR"},
		"http-port":          {envPrefix + "HTTP_PORT"},
		"base-url":           {envPrefix + "BASE_URL"},
		"log-level":          {envPrefix + "LOG_LEVEL"},
		"log-format":         {envPrefix + "LOG_FORMAT"},
		"soniox-api-key":     {envPrefix + "SONIOX_API_KEY", "SONIOX_API_KEY"},
		"deepseek-api-key":   {envPrefix + "DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY"},
		"elevenlabs-api-key": {envPrefix + "ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY"},
		"voice-id":           {envPrefix + "VOICE_ID", "ELEVENLABS_VOICE_ID"},
		"cleanup-interval":   {envPrefix + "CLEANUP_INTERVAL"},
		"retention-max-age":  {envPrefix + "RETENTION_MAX_AGE"},
	}

	for flagName, envVars := range envMap {
		if set[flagName] {
			continue
		}
		val := ""
		for _, envVar := range envVars {
			if v, ok := os.LookupEnv(envVar); ok && v != "" {
				val = v
				break
			}
		}
		if val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "base-url":
			cfg.BaseURL = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "soniox-api-key":
			cfg.SonioxAPIKey = val
		case "deepseek-api-key":
			cfg.DeepSeekAPIKey = val
		case "elevenlabs-api-key":
			cfg.ElevenLabsAPIKey = val
		case "voice-id":
			cfg.VoiceID = val
		case "cleanup-interval":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.CleanupInterval = v
			}
		case "retention-max-age":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.RetentionMaxAge = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base-url must start with http:// or https://, got %q", c.BaseURL)
	}
	if c.CleanupInterval < time.Minute {
		return fmt.Errorf("cleanup-interval must be at least 1m, got %s", c.CleanupInterval)
	}
	if c.RetentionMaxAge < time.Hour {
		return fmt.Errorf("retention-max-age must be at least 1h, got %s", c.RetentionMaxAge)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// AIConfigured returns true if every provider key needed for the
// conversation pipeline is present. With a missing key the hotline still
// runs; the AI program degrades to a hangup.
func (c *Config) AIConfigured() bool {
	return c.SonioxAPIKey != "" &&
		c.DeepSeekAPIKey != "" &&
		c.ElevenLabsAPIKey != "" &&
		c.VoiceID != ""
}

// PublicBaseURL returns the configured base URL, defaulting to the local
// listen address when none is set. Callbacks only reach the server through
// a public URL in production; the default serves local testing.
func (c *Config) PublicBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.HTTPPort)
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
