package llm

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
)

// ChatClient is the subset of openai.Client used by Live; it is easy to stub
// in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Live relays messages to a chat-completion provider. At most MaxConcurrent
// replies talk to the provider at once; the rest wait up to AdmissionTimeout
// for a slot and then fail with ErrServerBusy.
type Live struct {
	provider    string
	client      ChatClient
	model       string
	maxTokens   int
	temperature float32

	gate             *semaphore.Weighted
	capacity         int64
	inFlight         atomic.Int64
	admissionTimeout time.Duration
	requestTimeout   time.Duration
	retry            RetryPolicy
}

// NewLive builds a live responder around client. Zero-valued settings take
// their defaults.
func NewLive(s Settings, client ChatClient) *Live {
	s = s.withDefaults()
	return &Live{
		provider:         s.Provider,
		client:           client,
		model:            s.Model,
		maxTokens:        s.MaxTokens,
		temperature:      s.Temperature,
		gate:             semaphore.NewWeighted(int64(s.MaxConcurrent)),
		capacity:         int64(s.MaxConcurrent),
		admissionTimeout: s.AdmissionTimeout,
		requestTimeout:   s.RequestTimeout,
		retry:            s.retryPolicy(),
	}
}

// Capacity is the configured number of admission slots.
func (l *Live) Capacity() int {
	return int(l.capacity)
}

// InFlight is the number of admission slots currently held.
func (l *Live) InFlight() int {
	return int(l.inFlight.Load())
}

// Reply sends message as the only user turn and returns the first choice,
// trimmed. A response without choices yields an empty reply.
func (l *Live) Reply(ctx context.Context, message string) (string, error) {
	if err := l.admit(ctx); err != nil {
		return "", err
	}
	defer l.release()

	var (
		resp     openai.ChatCompletionResponse
		attempts int
	)
	start := time.Now()
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, l.requestTimeout)
		defer cancel()

		r, err := l.client.CreateChatCompletion(callCtx, l.request(message))
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", ctxErr
		}
		upErr := &UpstreamError{Provider: l.provider, Kind: Classify(err), Attempts: attempts, Err: err}
		log.Error().
			Err(err).
			Str("provider", l.provider).
			Str("kind", upErr.Kind.String()).
			Int("attempts", attempts).
			Msg("Upstream call failed")
		return "", upErr
	}

	log.Debug().
		Str("provider", l.provider).
		Int("attempts", attempts).
		Dur("took", time.Since(start)).
		Int("choices", len(resp.Choices)).
		Msg("Upstream call succeeded")

	if len(resp.Choices) == 0 {
		log.Warn().Str("provider", l.provider).Msg("Upstream returned no choices")
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (l *Live) admit(ctx context.Context) error {
	admitCtx, cancel := context.WithTimeout(ctx, l.admissionTimeout)
	defer cancel()

	if err := l.gate.Acquire(admitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn().
			Str("provider", l.provider).
			Int64("capacity", l.capacity).
			Dur("waited", l.admissionTimeout).
			Msg("Admission timed out")
		return ErrServerBusy
	}
	l.inFlight.Add(1)
	return nil
}

func (l *Live) release() {
	l.inFlight.Add(-1)
	l.gate.Release(1)
}

func (l *Live) request(message string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
	}
}
