package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/dialogue"
	"github.com/lexiqai/voice-assistant/internal/httpapi"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/pipeline"
	"github.com/lexiqai/voice-assistant/internal/resilience"
	"github.com/lexiqai/voice-assistant/internal/session"
	"github.com/lexiqai/voice-assistant/internal/stt"
	"github.com/lexiqai/voice-assistant/internal/tasks"
	"github.com/lexiqai/voice-assistant/internal/translate"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

const (
	taskQueueCapacity = 64
	taskRetention     = time.Hour
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("transcription_provider", cfg.TranscriptionProvider).
		Str("pivot_language", cfg.PivotLanguage).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Assistant Service starting")

	if cfg.MissingSynthesisKeys() {
		logger.Warn().Msg("ElevenLabs API keys are not fully configured; synthesis for some voices will fail")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Voice catalog and artifact storage
	catalog, err := tts.LoadCatalog(cfg.CharactersFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CharactersFile).Msg("Failed to load character catalog")
	}
	artifacts, err := tts.NewArtifactStore(cfg.AudioOutputDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.AudioOutputDir).Msg("Failed to create audio output directory")
	}
	synthesizer := tts.NewElevenLabsClient(cfg, catalog, artifacts, logger)

	// Transcription provider
	transcriber, err := stt.NewTranscriber(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create transcriber")
	}

	// Translation and dialogue
	translator := translate.NewService(translate.NewGoogleClient(cfg), cfg, logger)
	generator, err := dialogue.NewGeminiGenerator(rootCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	engine := dialogue.NewEngine(generator, cfg, logger)
	sessions := session.NewStore(session.DefaultPersona, config.Seconds(cfg.SessionTimeout), logger)

	orchestrator := pipeline.New(pipeline.Deps{
		Transcriber: transcriber,
		Translator:  translator,
		Dialogue:    engine,
		Sessions:    sessions,
		Synthesizer: synthesizer,
		Catalog:     catalog,
	}, cfg, logger)

	// Background work
	queue := tasks.NewQueue(taskQueueCapacity, logger)
	queue.Start(rootCtx)

	scheduler := tasks.NewScheduler(logger)
	scheduler.Every("session_sweep", config.Seconds(cfg.SessionSweepInterval), func(ctx context.Context) error {
		sessions.SweepExpired()
		return nil
	})
	scheduler.Every("audio_sweep", config.Seconds(cfg.AudioSweepInterval), func(ctx context.Context) error {
		_, err := artifacts.Sweep(time.Duration(cfg.AudioMaxAgeHours) * time.Hour)
		return err
	})
	scheduler.Every("task_prune", taskRetention/4, func(ctx context.Context) error {
		queue.Prune(taskRetention)
		return nil
	})

	checks := readinessChecks(cfg, artifacts, synthesizer, engine, queue)

	// Optional gRPC health service
	var grpcHealth *observability.GRPCHealthServer
	if cfg.GRPCHealthPort != "" {
		grpcHealth, err = observability.NewGRPCHealthServer(":"+cfg.GRPCHealthPort, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to start gRPC health server")
		}
		go func() {
			if err := grpcHealth.Serve(); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
		scheduler.Every("grpc_health_sync", 15*time.Second, func(ctx context.Context) error {
			grpcHealth.SyncWithChecks(ctx, checks)
			return nil
		})
		grpcHealth.SyncWithChecks(rootCtx, checks)
		logger.Info().Str("addr", grpcHealth.Addr()).Msg("gRPC health service enabled")
	}
	scheduler.Start(rootCtx)

	// Create HTTP server with timeouts. Turns include provider round trips, so
	// the write timeout is generous.
	api := httpapi.New(cfg, orchestrator, queue, artifacts, checks, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-rootCtx.Done()
	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	scheduler.Stop()
	queue.Stop()
	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	logger.Info().Msg("Server exited gracefully")
}

// readinessChecks are built here to avoid import cycles between observability
// and the provider packages
func readinessChecks(cfg *config.Config, artifacts *tts.ArtifactStore, synthesizer *tts.ElevenLabsClient, engine *dialogue.Engine, queue *tasks.Queue) map[string]observability.HealthCheckFunc {
	breakerCheck := func(breakers ...*resilience.CircuitBreaker) observability.HealthCheckFunc {
		return func(ctx context.Context) (bool, error) {
			for _, b := range breakers {
				if b != nil && b.GetState() == resilience.StateOpen {
					return false, fmt.Errorf("circuit %s is open", b.Name())
				}
			}
			return true, nil
		}
	}

	return map[string]observability.HealthCheckFunc{
		"audio_storage": func(ctx context.Context) (bool, error) {
			info, err := os.Stat(artifacts.Dir())
			if err != nil {
				return false, err
			}
			if !info.IsDir() {
				return false, fmt.Errorf("%s is not a directory", artifacts.Dir())
			}
			return true, nil
		},
		"elevenlabs": breakerCheck(synthesizer.Breaker("1"), synthesizer.Breaker("2")),
		"gemini":     breakerCheck(engine.Breaker()),
		"task_queue": func(ctx context.Context) (bool, error) {
			if depth := queue.Depth(); depth >= taskQueueCapacity {
				return false, fmt.Errorf("queue full (%d)", depth)
			}
			return true, nil
		},
		"transcription": func(ctx context.Context) (bool, error) {
			// Keys are checked at startup; report the provider in use
			return cfg.TranscriptionProvider != "", nil
		},
	}
}
