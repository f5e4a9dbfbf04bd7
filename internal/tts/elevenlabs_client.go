package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
	"github.com/lexiqai/voice-assistant/internal/translate"
)

// MaxTextLength is the longest text the provider accepts, in characters
const MaxTextLength = 5000

const (
	monolingualModel  = "eleven_monolingual_v1"
	multilingualModel = "eleven_multilingual_v2"
)

// Artifact is a synthesized audio file
type Artifact struct {
	Path     string
	Filename string
	Bytes    int64
}

// Synthesizer turns text into a stored audio artifact
type Synthesizer interface {
	Synthesize(ctx context.Context, text, character, language, filename string) (Artifact, error)
}

// ElevenLabsClient implements Synthesizer with the ElevenLabs REST API.
// Voices are split over two accounts, each with its own key and breaker.
type ElevenLabsClient struct {
	catalog        *Catalog
	store          *ArtifactStore
	keys           map[string]string
	breakers       map[string]*resilience.CircuitBreaker
	baseURL        string
	httpClient     *http.Client
	attempts       int
	backoff        resilience.Backoff
	requestTimeout time.Duration
	timeoutPause   time.Duration
	pivot          string
	logger         zerolog.Logger
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// NewElevenLabsClient creates a client for the voices in catalog, writing
// artifacts to store
func NewElevenLabsClient(cfg *config.Config, catalog *Catalog, store *ArtifactStore, logger zerolog.Logger) *ElevenLabsClient {
	logger = logger.With().Str("component", "elevenlabs").Logger()

	breakers := make(map[string]*resilience.CircuitBreaker, 2)
	for _, account := range []string{"1", "2"} {
		cb := resilience.NewCircuitBreaker("elevenlabs_"+account, cfg.CircuitBreakerMaxFailures, config.Seconds(cfg.CircuitBreakerResetTimeout))
		cb.OnStateChange(func(name string, state resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(state))
			logger.Warn().Str("breaker", name).Str("state", state.String()).Msg("Circuit breaker changed state")
		})
		breakers[account] = cb
	}

	attempts := cfg.TTSAttempts
	if attempts <= 0 {
		attempts = 3
	}
	requestTimeout := config.Seconds(cfg.TTSRequestTimeout)
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	pivot := translate.PivotCode(cfg.PivotLanguage)

	return &ElevenLabsClient{
		catalog:  catalog,
		store:    store,
		keys:     map[string]string{"1": cfg.ElevenLabsAPIKey1, "2": cfg.ElevenLabsAPIKey2},
		breakers: breakers,
		baseURL:  strings.TrimRight(cfg.ElevenLabsBaseURL, "/"),
		// Per-attempt deadlines come from the request context
		httpClient: &http.Client{},
		attempts:   attempts,
		backoff: resilience.ExponentialBackoff{
			Initial:    config.Millis(cfg.TTSBackoffBase),
			Max:        config.Seconds(cfg.TTSBackoffMax),
			Multiplier: 2,
		},
		requestTimeout: requestTimeout,
		timeoutPause:   2 * time.Second,
		pivot:          pivot,
		logger:         logger,
	}
}

// Catalog returns the voices this client can speak with
func (c *ElevenLabsClient) Catalog() *Catalog {
	return c.catalog
}

// Breaker returns the breaker guarding an account
func (c *ElevenLabsClient) Breaker(account string) *resilience.CircuitBreaker {
	return c.breakers[account]
}

// Validate checks text, character and language without calling the provider
// and returns the character and language code to use
func (c *ElevenLabsClient) Validate(text, character, language string) (*Character, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", newError(KindEmptyText, "text cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, "", newError(KindTextTooLong, "text exceeds maximum length (%d characters)", MaxTextLength)
	}
	ch, ok := c.catalog.Get(character)
	if !ok {
		return nil, "", newError(KindUnknownCharacter, "character '%s' not found", character)
	}
	code, ok := ch.LanguageCode(language)
	if !ok {
		return nil, "", newError(KindUnsupportedLanguage, "language '%s' not supported by character '%s'", language, ch.Name)
	}
	return ch, code, nil
}

// Synthesize renders text with the character's voice and stores the audio
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, character, language, filename string) (Artifact, error) {
	ch, code, err := c.Validate(text, character, language)
	if err != nil {
		return Artifact{}, err
	}

	model := multilingualModel
	if code == c.pivot {
		model = monolingualModel
	}
	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       model,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal synthesis request: %w", err)
	}

	name := c.store.Name(ch.Name, code, filename)
	logger := observability.FromContext(ctx, c.logger).With().
		Str("character", ch.Name).
		Str("language", code).
		Str("model", model).
		Logger()

	retry := &resilience.RetryConfig{
		MaxAttempts: c.attempts,
		Backoff:     c.backoff,
		IsRetryable: resilience.IsRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			observability.RecordRetry("tts")
			logger.Warn().Err(err).Int("attempt", attempt+1).Int("max_attempts", c.attempts).Dur("wait", wait).Msg("Synthesis attempt failed, retrying")
		},
	}

	var artifact Artifact
	start := time.Now()
	err = resilience.Retry(ctx, func(ctx context.Context, attempt int) error {
		a, err := c.attempt(ctx, ch, body, name)
		if err != nil {
			return err
		}
		artifact = a
		return nil
	}, retry)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordProviderCall("elevenlabs", outcome, time.Since(start))

	if err != nil {
		err = classify(ctx, err)
		logger.Error().Err(err).Msg("Speech synthesis failed")
		return Artifact{}, err
	}

	logger.Info().Str("file", artifact.Filename).Int64("bytes", artifact.Bytes).Msg("Audio successfully saved")
	return artifact, nil
}

// attempt performs one provider request. Retryable failures are wrapped in
// resilience.RetryableError around a *Error.
func (c *ElevenLabsClient) attempt(ctx context.Context, ch *Character, body []byte, name string) (Artifact, error) {
	breaker := c.breakers[ch.Account]
	if breaker != nil && !breaker.Allow() {
		return Artifact{}, &Error{Kind: KindUnavailable, Message: "voice account " + ch.Account + " is unavailable", Err: resilience.ErrCircuitOpen}
	}
	record := func(ok bool) {
		if breaker == nil {
			return
		}
		breaker.RecordResult(ok)
		if !ok {
			observability.IncrementCircuitBreakerFailures(breaker.Name())
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/v1/text-to-speech/"+ch.VoiceID, bytes.NewReader(body))
	if err != nil {
		record(true)
		return Artifact{}, &Error{Kind: KindTransport, Message: "building request", Err: err}
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.keys[ch.Account])

	resp, err := c.httpClient.Do(req)
	if err != nil {
		record(false)
		return Artifact{}, c.requestFailure(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		path, n, err := c.store.Write(name, resp.Body)
		if err != nil {
			if attemptCtx.Err() != nil || ctx.Err() != nil {
				record(false)
				return Artifact{}, c.requestFailure(ctx, attemptCtx, err)
			}
			record(true)
			return Artifact{}, &Error{Kind: KindStorage, Message: "saving audio", Err: err}
		}
		record(true)
		observability.RecordAudioBytes("out", n)
		return Artifact{Path: path, Filename: name, Bytes: n}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		record(true)
		return Artifact{}, resilience.NewRetryableError(statusError(resp))

	case resp.StatusCode >= 500:
		record(false)
		return Artifact{}, resilience.NewRetryableError(statusError(resp))

	default:
		record(true)
		return Artifact{}, statusError(resp)
	}
}

// requestFailure maps a failed round trip: a per-attempt timeout is retried
// after a fixed pause, anything else ends the call
func (c *ElevenLabsClient) requestFailure(parent, attemptCtx context.Context, err error) error {
	if parent.Err() != nil {
		return &Error{Kind: KindTimeout, Message: "request cancelled", Err: parent.Err()}
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return resilience.RetryAfter(&Error{Kind: KindTimeout, Message: "request timed out", Err: err}, c.timeoutPause)
	}
	return &Error{Kind: KindTransport, Message: "request error", Err: err}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func statusError(resp *http.Response) *Error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &Error{
		Kind:    KindProviderStatus,
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
	}
}

// classify turns the error left by the retry loop into a *Error
func classify(ctx context.Context, err error) error {
	var exhausted *resilience.ExhaustedError
	if errors.As(err, &exhausted) {
		last := KindOf(exhausted.Err)
		if last == KindTimeout {
			return &Error{Kind: KindTimeout, Message: fmt.Sprintf("request timed out after %d attempts", exhausted.Attempts), Err: exhausted.Err}
		}
		return &Error{Kind: KindExhausted, Message: fmt.Sprintf("failed after %d attempts", exhausted.Attempts), Err: exhausted.Err}
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if ctx.Err() != nil {
		return &Error{Kind: KindTimeout, Message: "request cancelled", Err: err}
	}
	return &Error{Kind: KindTransport, Message: "synthesis failed", Err: err}
}
