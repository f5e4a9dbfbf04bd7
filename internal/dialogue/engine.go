package dialogue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
	"github.com/lexiqai/voice-assistant/internal/session"
)

// Replies used when the model cannot be consulted
const (
	FallbackReply  = "I'm having trouble processing your request right now."
	NoContextReply = "I don't have any context to respond to."
)

// Model-side roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one entry of the model-facing conversation
type Message struct {
	Role string
	Text string
}

// Request is everything a Generator needs for one completion
type Request struct {
	Messages    []Message
	Temperature float32
	TopP        float32
	TopK        float32
	MaxTokens   int32
}

// Generator produces one reply for a formatted conversation
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Option adjusts a single Respond call
type Option func(*Request)

// WithTemperature overrides the sampling temperature
func WithTemperature(t float32) Option {
	return func(r *Request) {
		r.Temperature = t
	}
}

// WithMaxTokens overrides the output token limit
func WithMaxTokens(n int32) Option {
	return func(r *Request) {
		r.MaxTokens = n
	}
}

// Engine turns a session history into the assistant's next reply
type Engine struct {
	generator Generator
	defaults  Request
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger
}

// NewEngine creates an engine with sampling defaults from cfg
func NewEngine(generator Generator, cfg *config.Config, logger zerolog.Logger) *Engine {
	maxTokens := int32(cfg.GeminiMaxTokens)
	if maxTokens <= 0 {
		maxTokens = 150
	}

	breaker := resilience.NewCircuitBreaker("gemini", cfg.CircuitBreakerMaxFailures, config.Seconds(cfg.CircuitBreakerResetTimeout))
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})

	return &Engine{
		generator: generator,
		defaults: Request{
			Temperature: float32(cfg.GeminiTemperature),
			TopP:        0.95,
			TopK:        40,
			MaxTokens:   maxTokens,
		},
		breaker: breaker,
		logger:  logger.With().Str("component", "dialogue").Logger(),
	}
}

// Breaker exposes the model circuit breaker for readiness checks
func (e *Engine) Breaker() *resilience.CircuitBreaker {
	return e.breaker
}

// Respond returns the next assistant reply. It never fails: model errors and
// empty replies produce FallbackReply.
func (e *Engine) Respond(ctx context.Context, turns []session.Turn, opts ...Option) string {
	logger := observability.FromContext(ctx, e.logger)

	if len(turns) == 0 {
		logger.Error().Msg("No turns provided for response generation")
		return NoContextReply
	}

	req := e.defaults
	for _, opt := range opts {
		opt(&req)
	}
	req.Messages = FormatTurns(turns)

	start := time.Now()
	var reply string
	err := e.breaker.Call(func() error {
		text, err := e.generator.Generate(ctx, req)
		if err != nil {
			return err
		}
		reply = strings.TrimSpace(text)
		return nil
	})

	outcome := "success"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
		observability.IncrementCircuitBreakerFailures("gemini")
	}
	observability.RecordProviderCall("gemini", outcome, time.Since(start))

	if err != nil {
		logger.Error().Err(err).Msg("Dialogue model call failed")
		return FallbackReply
	}
	if reply == "" {
		logger.Warn().Msg("Dialogue model returned an empty reply")
		return FallbackReply
	}

	logger.Info().Float32("temperature", req.Temperature).Int("reply_chars", len(reply)).Msg("Reply generated")
	return reply
}

// FormatTurns maps session turns onto model roles. System turns are not sent
// as messages; the first one is folded into the opening user message instead.
// A history with no user or assistant turns becomes a bare greeting.
func FormatTurns(turns []session.Turn) []Message {
	system := session.DefaultPersona
	for _, t := range turns {
		if t.Role == session.RoleSystem {
			system = t.Content
			break
		}
	}

	messages := make([]Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleSystem:
			continue
		case session.RoleUser:
			messages = append(messages, Message{Role: RoleUser, Text: t.Content})
		default:
			messages = append(messages, Message{Role: RoleModel, Text: t.Content})
		}
	}

	if len(messages) == 0 {
		return []Message{{Role: RoleUser, Text: "Hello"}}
	}
	if messages[0].Role == RoleUser {
		messages[0].Text = system + "\n\nUser: " + messages[0].Text
	}
	return messages
}
