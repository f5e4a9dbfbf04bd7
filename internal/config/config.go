package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transcription providers
const (
	ProviderGladia   = "gladia"
	ProviderDeepgram = "deepgram"
)

// Config holds all configuration for the voice assistant service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"5000"`
	AudioOutputDir string `envconfig:"AUDIO_OUTPUT_DIR" default:"audio_outputs"`
	TempDir        string `envconfig:"TEMP_DIR" default:""`                 // Empty uses os.TempDir()
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"` // 25 MiB
	CharactersFile string `envconfig:"CHARACTERS_FILE" default:""`          // Optional JSON override of the built-in catalog
	Production     bool   `envconfig:"PRODUCTION" default:"false"`          // Missing provider keys are fatal in production
	PivotLanguage  string `envconfig:"PIVOT_LANGUAGE" default:"en"`         // Language every translation is routed through

	// Transcription provider configuration
	TranscriptionProvider string `envconfig:"TRANSCRIPTION_PROVIDER" default:"gladia"` // gladia, deepgram
	GladiaAPIKey          string `envconfig:"GLADIA_API_KEY" default:""`
	GladiaBaseURL         string `envconfig:"GLADIA_BASE_URL" default:"https://api.gladia.io"`
	TranscriptionPollMs   int    `envconfig:"TRANSCRIPTION_POLL_INTERVAL" default:"5000"` // milliseconds
	TranscriptionMaxPolls int    `envconfig:"TRANSCRIPTION_MAX_POLLS" default:"60"`
	DeepgramAPIKey        string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel         string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Translation configuration
	TranslateBaseURL    string `envconfig:"TRANSLATE_BASE_URL" default:"https://translate.googleapis.com"`
	TranslateAttempts   int    `envconfig:"TRANSLATE_ATTEMPTS" default:"3"`
	TranslateRetryDelay int    `envconfig:"TRANSLATE_RETRY_DELAY" default:"1000"` // milliseconds
	TranslateTimeout    int    `envconfig:"TRANSLATE_TIMEOUT" default:"10"`       // seconds

	// Gemini dialogue model configuration
	GoogleAPIKey      string  `envconfig:"GOOGLE_API_KEY" default:""`
	GeminiModel       string  `envconfig:"GEMINI_MODEL" default:"gemini-1.5-pro"`
	GeminiMaxTokens   int     `envconfig:"GEMINI_MAX_TOKENS" default:"150"`
	GeminiTemperature float64 `envconfig:"GEMINI_TEMPERATURE" default:"0.7"`

	// ElevenLabs TTS configuration
	ElevenLabsAPIKey1   string  `envconfig:"ELEVEN_LABS_API_KEY_1" default:""`
	ElevenLabsAPIKey2   string  `envconfig:"ELEVEN_LABS_API_KEY_2" default:""`
	ElevenLabsBaseURL   string  `envconfig:"ELEVEN_LABS_BASE_URL" default:"https://api.elevenlabs.io"`
	TTSAttempts         int     `envconfig:"TTS_ATTEMPTS" default:"3"`
	TTSBackoffBase      int     `envconfig:"TTS_BACKOFF_BASE" default:"1000"` // milliseconds, doubled per attempt
	TTSBackoffMax       int     `envconfig:"TTS_BACKOFF_MAX" default:"60"`    // seconds
	TTSRequestTimeout   int     `envconfig:"TTS_REQUEST_TIMEOUT" default:"30"` // seconds per attempt
	AudioMaxAgeHours    int     `envconfig:"AUDIO_MAX_AGE_HOURS" default:"24"`
	AudioSweepInterval  int     `envconfig:"AUDIO_SWEEP_INTERVAL" default:"21600"` // seconds
	SilenceRMSThreshold float64 `envconfig:"SILENCE_RMS_THRESHOLD" default:"30.0"` // 0 disables the silent upload check

	// Session configuration
	SessionTimeout       int `envconfig:"SESSION_TIMEOUT" default:"3600"`        // seconds
	SessionSweepInterval int `envconfig:"SESSION_SWEEP_INTERVAL" default:"3600"` // seconds
	SessionKeepPairs     int `envconfig:"SESSION_KEEP_PAIRS" default:"10"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""`    // Empty disables the gRPC health service
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required keys and fills derived defaults
func (c *Config) Validate() error {
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}

	c.TranscriptionProvider = strings.ToLower(strings.TrimSpace(c.TranscriptionProvider))
	switch c.TranscriptionProvider {
	case ProviderGladia:
		if c.GladiaAPIKey == "" {
			return fmt.Errorf("GLADIA_API_KEY is required when TRANSCRIPTION_PROVIDER=gladia")
		}
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when TRANSCRIPTION_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPTION_PROVIDER %q", c.TranscriptionProvider)
	}

	if c.Production && (c.ElevenLabsAPIKey1 == "" || c.ElevenLabsAPIKey2 == "") {
		return fmt.Errorf("ELEVEN_LABS_API_KEY_1 and ELEVEN_LABS_API_KEY_2 are required in production")
	}

	if c.PivotLanguage == "" {
		c.PivotLanguage = "en"
	}
	if c.SessionKeepPairs <= 0 {
		c.SessionKeepPairs = 10
	}
	return nil
}

// MissingSynthesisKeys reports whether any ElevenLabs account key is unset.
// Outside production this is only worth a warning at startup.
func (c *Config) MissingSynthesisKeys() bool {
	return c.ElevenLabsAPIKey1 == "" || c.ElevenLabsAPIKey2 == ""
}

// ResolvedTempDir returns the directory used for spooled uploads.
func (c *Config) ResolvedTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// Millis converts a millisecond setting into a duration.
func Millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Seconds converts a second setting into a duration.
func Seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}
