package translate

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/resilience"
)

// Service routes text to and from the pivot language the dialogue model
// speaks. Its operations never fail: detection falls back to the pivot and
// translation falls back to the input text.
type Service struct {
	provider Provider
	pivot    string
	retry    *resilience.RetryConfig
	logger   zerolog.Logger
}

// NewService wraps provider with retries taken from cfg
func NewService(provider Provider, cfg *config.Config, logger zerolog.Logger) *Service {
	s := &Service{
		provider: provider,
		pivot:    PivotCode(cfg.PivotLanguage),
		logger:   logger.With().Str("component", "translate").Logger(),
	}
	s.retry = resilience.FixedDelayConfig(cfg.TranslateAttempts, config.Millis(cfg.TranslateRetryDelay))
	s.retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		observability.RecordRetry("translate")
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("wait", wait).Msg("Translation attempt failed, retrying")
	}
	return s
}

// Pivot returns the pivot language code
func (s *Service) Pivot() string {
	return s.pivot
}

// DetectLanguage returns the ISO code of text's language, or the pivot when
// text is empty or detection fails
func (s *Service) DetectLanguage(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return s.pivot
	}

	var detected string
	err := resilience.Retry(ctx, func(ctx context.Context, _ int) error {
		code, err := s.provider.Detect(ctx, text)
		if err != nil {
			return err
		}
		detected = code
		return nil
	}, s.retry)
	if err != nil {
		s.logger.Error().Err(err).Msg("Language detection failed, assuming pivot language")
		return s.pivot
	}

	if code, ok := Code(detected); ok {
		return code
	}
	s.logger.Warn().Str("detected", detected).Msg("Unrecognised language code, assuming pivot language")
	return s.pivot
}

// ToPivot translates text from source into the pivot language. An empty or
// unknown source lets the provider detect it.
func (s *Service) ToPivot(ctx context.Context, text, source string) string {
	src, _ := Code(source)
	if src == s.pivot {
		return text
	}
	return s.translate(ctx, text, src, s.pivot)
}

// FromPivot translates pivot-language text into target
func (s *Service) FromPivot(ctx context.Context, text, target string) string {
	tgt, ok := Code(target)
	if !ok {
		s.logger.Warn().Str("target", target).Msg("Unknown target language, returning text untranslated")
		return text
	}
	if tgt == s.pivot {
		return text
	}
	return s.translate(ctx, text, s.pivot, tgt)
}

// Translate converts text between two arbitrary languages
func (s *Service) Translate(ctx context.Context, text, source, target string) string {
	src, _ := Code(source)
	tgt, ok := Code(target)
	if !ok || src == tgt {
		return text
	}
	return s.translate(ctx, text, src, tgt)
}

func (s *Service) translate(ctx context.Context, text, source, target string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	var out string
	err := resilience.Retry(ctx, func(ctx context.Context, _ int) error {
		translated, err := s.provider.Translate(ctx, text, source, target)
		if err != nil {
			return err
		}
		out = translated
		return nil
	}, s.retry)
	if err != nil {
		s.logger.Error().Err(err).Str("source", source).Str("target", target).Msg("Translation failed, returning original text")
		return text
	}
	return out
}
