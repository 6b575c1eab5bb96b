package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrServerBusy is returned when no admission slot frees up in time.
	ErrServerBusy = errors.New("server busy; try again later")

	// ErrTransientUpstream matches an UpstreamError whose retries ran out.
	ErrTransientUpstream = errors.New("transient upstream failure")

	// ErrFatalUpstream matches an UpstreamError that was not retried.
	ErrFatalUpstream = errors.New("fatal upstream failure")
)

// ConfigurationError reports a live provider that cannot be built from the
// supplied settings.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s provider misconfigured: %s", e.Provider, e.Reason)
}

// Kind separates failures worth retrying from the ones that are not.
type Kind int

const (
	KindFatal Kind = iota
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "fatal"
}

// UpstreamError wraps the last error returned by the provider.
type UpstreamError struct {
	Provider string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s error after %d attempt(s): %v", e.Provider, e.Kind, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrTransientUpstream:
		return e.Kind == KindTransient
	case ErrFatalUpstream:
		return e.Kind == KindFatal
	}
	return false
}

// Classify decides whether err is worth another attempt. Timeouts, rate
// limits and 5xx responses are transient; everything else is fatal.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	return KindFatal
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return KindTransient
	case code >= http.StatusInternalServerError:
		return KindTransient
	}
	return KindFatal
}

// IsServerBusy returns true if err is ErrServerBusy
func IsServerBusy(err error) bool {
	return errors.Is(err, ErrServerBusy)
}

// IsConfiguration returns true if err carries a ConfigurationError
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsTransient returns true if the provider kept failing with retryable errors
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientUpstream)
}

// IsFatal returns true if the provider rejected the request outright
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalUpstream)
}
