package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/pipeline"
	"github.com/lexiqai/voice-assistant/internal/tasks"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

// Pipeline is the conversational core the handlers drive
type Pipeline interface {
	ProcessAudio(ctx context.Context, req pipeline.AudioRequest) pipeline.Result
	ProcessText(ctx context.Context, req pipeline.TextRequest) pipeline.Result
	GenerateSpeech(ctx context.Context, req pipeline.SpeechRequest) pipeline.Result
	ListCharacters() map[string]tts.CharacterInfo
	ListSupportedLanguages(character string) ([]string, error)
}

// MaxSpeechChars caps standalone speech generation requests
const MaxSpeechChars = 2000

// Server exposes the pipeline over HTTP and WebSocket
type Server struct {
	pipeline       Pipeline
	queue          *tasks.Queue
	artifacts      *tts.ArtifactStore
	checks         map[string]observability.HealthCheckFunc
	metricsEnabled bool
	maxUploadBytes int64
	tempDir        string
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
}

// New creates a server. queue may be nil, which disables the async routes.
func New(cfg *config.Config, p Pipeline, queue *tasks.Queue, artifacts *tts.ArtifactStore, checks map[string]observability.HealthCheckFunc, logger zerolog.Logger) *Server {
	return &Server{
		pipeline:       p,
		queue:          queue,
		artifacts:      artifacts,
		checks:         checks,
		metricsEnabled: cfg.MetricsEnabled,
		maxUploadBytes: cfg.MaxUploadBytes,
		tempDir:        cfg.ResolvedTempDir(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(s.checks))
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Post("/process_audio", s.handleProcessAudio)
	r.Post("/process_audio_async", s.handleProcessAudioAsync)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Post("/process_text", s.handleProcessText)
	r.Post("/generate_speech", s.handleGenerateSpeech)
	r.Post("/get_languages", s.handleGetLanguages)
	r.Get("/get_characters", s.handleGetCharacters)
	r.Get("/audio/{filename}", s.handleGetAudio)
	r.Get("/ws", s.handleConversationWS)

	// Legacy aliases
	r.Post("/api/speech-to-text", s.handleProcessAudio)
	r.Post("/api/text-to-speech", s.handleGenerateSpeech)
	r.Post("/api/process-message", s.handleProcessText)

	return r
}

// requestLogger attaches a correlated logger to the request context and logs
// one line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger, correlationID := observability.WithCorrelationID(s.logger, strings.TrimSpace(r.Header.Get("X-Request-ID")))
		logger = logger.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		w.Header().Set("X-Request-ID", correlationID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(observability.ContextWithLogger(r.Context(), logger)))

		logger.Info().
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondResult writes a pipeline result with a status derived from its
// failure kind
func respondResult(w http.ResponseWriter, res pipeline.Result) {
	respondJSON(w, statusFor(res), res)
}

func statusFor(res pipeline.Result) int {
	if res.Success || res.Failure == nil {
		return http.StatusOK
	}
	switch res.Failure.Kind {
	case pipeline.KindInvalidInput:
		return http.StatusBadRequest
	case pipeline.KindUnintelligible:
		return http.StatusUnprocessableEntity
	case pipeline.KindUnavailable:
		return http.StatusServiceUnavailable
	case pipeline.KindProvider:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
