package llm

import (
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// Provider identifiers understood by New.
const (
	ProviderMock       = "mock"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Defaults applied to zero-valued Settings.
const (
	DefaultMaxTokens        = 256
	DefaultTemperature      = 0.2
	DefaultMaxConcurrent    = 4
	DefaultMaxRetries       = 4
	DefaultAdmissionTimeout = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
)

type providerDefaults struct {
	baseURL string
	model   string
}

// All live providers speak the OpenAI chat-completion format.
var liveProviders = map[string]providerDefaults{
	ProviderOpenAI:     {baseURL: "https://api.openai.com/v1", model: "gpt-3.5-turbo"},
	ProviderOpenRouter: {baseURL: "https://openrouter.ai/api/v1", model: "openai/gpt-3.5-turbo"},
	ProviderGemini:     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", model: "gemini-2.0-flash"},
}

// Settings selects and tunes a responder. It is read once at startup.
type Settings struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32

	MaxConcurrent    int
	MaxRetries       int
	AdmissionTimeout time.Duration
	RequestTimeout   time.Duration

	// Backoff bounds between attempts; zero means 1s and 10s.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// IsLiveProvider reports whether name selects a live provider.
func IsLiveProvider(name string) bool {
	_, ok := liveProviders[normalizeProvider(name)]
	return ok
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s Settings) withDefaults() Settings {
	s.Provider = normalizeProvider(s.Provider)
	if d, ok := liveProviders[s.Provider]; ok {
		if s.BaseURL == "" {
			s.BaseURL = d.baseURL
		}
		if s.Model == "" {
			s.Model = d.model
		}
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Temperature <= 0 {
		s.Temperature = DefaultTemperature
	}
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = DefaultMaxConcurrent
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.AdmissionTimeout <= 0 {
		s.AdmissionTimeout = DefaultAdmissionTimeout
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	return s
}

func (s Settings) retryPolicy() RetryPolicy {
	p := DefaultRetryPolicy(s.MaxRetries)
	if s.RetryInitialInterval > 0 {
		p.InitialInterval = s.RetryInitialInterval
	}
	if s.RetryMaxInterval > 0 {
		p.MaxInterval = s.RetryMaxInterval
	}
	return p
}

// New returns the responder named by s.Provider. An empty, "mock" or unknown
// provider yields Offline. A live provider without a credential or with an
// unusable base URL yields a *ConfigurationError.
func New(s Settings) (Responder, error) {
	s = s.withDefaults()
	if _, ok := liveProviders[s.Provider]; !ok {
		if s.Provider != "" && s.Provider != ProviderMock {
			log.Debug().Str("provider", s.Provider).Msg("Unknown provider, using offline responder")
		}
		return NewOffline(), nil
	}

	if strings.TrimSpace(s.APIKey) == "" {
		return nil, &ConfigurationError{Provider: s.Provider, Reason: "API key not set"}
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ConfigurationError{Provider: s.Provider, Reason: "invalid base URL " + s.BaseURL}
	}

	cfg := openai.DefaultConfig(s.APIKey)
	cfg.BaseURL = strings.TrimRight(s.BaseURL, "/")

	log.Info().
		Str("provider", s.Provider).
		Str("model", s.Model).
		Int("max_concurrent", s.MaxConcurrent).
		Int("max_retries", s.MaxRetries).
		Msg("Using live responder")

	return NewLive(s, openai.NewClientWithConfig(cfg)), nil
}

// NewOrOffline is New with the documented fallback: any construction error is
// logged and Offline is returned instead.
func NewOrOffline(s Settings) Responder {
	r, err := New(s)
	if err != nil {
		log.Error().Err(err).Str("provider", s.Provider).Msg("Failed to init assistant provider, falling back to offline responder")
		return NewOffline()
	}
	return r
}
