// Package assistant turns chat prompts into displayable assistant replies.
//
// The Pipeline never surfaces an error to its caller: backend failures are
// retried according to a backoff policy when they are transient and
// otherwise degrade to a fixed fallback text.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"huddle/internal/backoff"
	"huddle/internal/metrics"
)

const (
	// FallbackText is shown to the room when no reply could be generated.
	FallbackText = "AI service is currently unavailable. Please try again later."

	// EmptyPromptText answers a bare trigger without calling the backend.
	EmptyPromptText = "Ask me something after the @ai mention and I'll answer the whole room."
)

// Backend is a remote text-completion service.
type Backend interface {
	// Generate returns completion text. Retryable failures must satisfy
	// errors.Is(err, ErrTransient).
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pipeline invokes a Backend under a retry policy and sanitizes its output.
type Pipeline struct {
	backend  Backend
	policy   backoff.Policy
	sleep    backoff.Sleeper
	fallback string
	logger   zerolog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleep backoff.Sleeper) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// WithFallbackText overrides FallbackText.
func WithFallbackText(text string) Option {
	return func(p *Pipeline) {
		if text != "" {
			p.fallback = text
		}
	}
}

// NewPipeline creates a pipeline over backend using policy for retries.
func NewPipeline(backend Backend, policy backoff.Policy, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend:  backend,
		policy:   policy,
		sleep:    backoff.Sleep,
		fallback: FallbackText,
		logger:   logger.With().Str("component", "assistant").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Augment returns the sanitized backend reply for prompt, or fallback text.
func (p *Pipeline) Augment(ctx context.Context, prompt string) string {
	start := time.Now()
	defer func() {
		metrics.AssistantLatency.Observe(time.Since(start).Seconds())
	}()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		metrics.AssistantRequests.WithLabelValues("empty_prompt").Inc()
		return EmptyPromptText
	}

	var raw string
	retrier := backoff.Retrier{
		Policy:    p.policy,
		Retryable: IsTransient,
		Sleep:     p.sleep,
		OnRetry: func(retry int, delay time.Duration, err error) {
			metrics.AssistantRetries.Inc()
			p.logger.Warn().
				Err(err).
				Int("attempt", retry).
				Int("max_attempts", p.policy.MaxAttempts()).
				Dur("delay", delay).
				Msg("generative backend overloaded, retrying")
		},
	}

	err := retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		text, err := p.backend.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		raw = text
		return nil
	})
	if err != nil {
		metrics.AssistantRequests.WithLabelValues("fallback").Inc()
		p.logger.Error().
			Err(err).
			Bool("transient", IsTransient(err)).
			Msg("generative backend failed, replying with fallback")
		return p.fallback
	}

	text := Sanitize(raw)
	if text == "" {
		metrics.AssistantRequests.WithLabelValues("fallback").Inc()
		p.logger.Warn().Msg("generative backend returned blank text")
		return p.fallback
	}

	metrics.AssistantRequests.WithLabelValues("success").Inc()
	return text
}
