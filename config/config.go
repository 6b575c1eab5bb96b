package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Provider         string
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	Temperature      float32
	MaxConcurrent    int
	MaxRetries       int
	AdmissionTimeout time.Duration
	RequestTimeout   time.Duration

	ListenAddr     string
	AppClientToken string
	LogLevel       string

	SignalAPIURL string
	SignalNumber string
	SignalUUID   string
	PollInterval time.Duration
}

// providerKeys maps a provider to the variable holding its credential.
var providerKeys = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"gemini":     "GOOGLE_API_KEY",
}

// LoadConfig reads .env (when present) and the process environment. Numeric
// and duration values that do not parse, or are not positive, fall back to
// their defaults with a warning.
func LoadConfig() (*Config, error) {
	return load(".env")
}

func load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		log.Debug().Strs("files", files).Msg("No .env file, using process environment")
	}

	provider := strings.ToLower(strings.TrimSpace(getEnv("ASSISTANT_PROVIDER", "mock")))

	return &Config{
		Provider:         provider,
		APIKey:           apiKey(provider),
		BaseURL:          getEnv("ASSISTANT_BASE_URL", ""),
		Model:            getEnv("ASSISTANT_MODEL", ""),
		MaxTokens:        getInt("MAX_TOKENS", 256),
		Temperature:      getFloat("TEMPERATURE", 0.2),
		MaxConcurrent:    getInt("MAX_CONCURRENT", 4),
		MaxRetries:       getInt("MAX_RETRIES", 4),
		AdmissionTimeout: getDuration("ADMISSION_TIMEOUT", 10*time.Second),
		RequestTimeout:   getDuration("REQUEST_TIMEOUT", 30*time.Second),

		ListenAddr:     getEnv("LISTEN_ADDR", ":5000"),
		AppClientToken: getEnv("APP_CLIENT_TOKEN", ""),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),

		SignalAPIURL: getEnv("SIGNAL_API_URL", "http://localhost:8089"),
		SignalNumber: getEnv("SIGNAL_NUMBER", ""),
		SignalUUID:   getEnv("SIGNAL_UUID", ""),
		PollInterval: getDuration("POLL_INTERVAL", 5*time.Second),
	}, nil
}

// SignalEnabled reports whether the Signal relay should run.
func (c *Config) SignalEnabled() bool {
	return c.SignalNumber != ""
}

// apiKey prefers ASSISTANT_API_KEY over the provider's own variable.
func apiKey(provider string) string {
	if key := getEnv("ASSISTANT_API_KEY", ""); key != "" {
		return key
	}
	if env, ok := providerKeys[provider]; ok {
		return getEnv(env, "")
	}
	return ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Int("default", fallback).Msg("Invalid value, using default")
		return fallback
	}
	return v
}

func getFloat(key string, fallback float32) float32 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Float32("default", fallback).Msg("Invalid value, using default")
		return fallback
	}
	return float32(v)
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Dur("default", fallback).Msg("Invalid value, using default")
		return fallback
	}
	return v
}
