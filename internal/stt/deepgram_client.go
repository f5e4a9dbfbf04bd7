package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/jsonvalue"
	"github.com/lexiqai/voice-assistant/internal/observability"
)

const deepgramProvider = "deepgram"

// DeepgramClient implements Transcriber using Deepgram's pre-recorded REST
// API. The SDK call is synchronous, so there is no job to poll.
type DeepgramClient struct {
	model    string
	fromFile fromFileFunc
	logger   zerolog.Logger
}

// fromFileFunc is the SDK's pre-recorded call with its response left opaque
type fromFileFunc func(ctx context.Context, path string, options *interfaces.PreRecordedTranscriptionOptions) (any, error)

// NewDeepgramClient creates a new Deepgram pre-recorded client
func NewDeepgramClient(cfg *config.Config, logger zerolog.Logger) *DeepgramClient {
	c := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})
	dg := api.New(c)
	return &DeepgramClient{
		model: cfg.DeepgramModel,
		fromFile: func(ctx context.Context, path string, options *interfaces.PreRecordedTranscriptionOptions) (any, error) {
			return dg.FromFile(ctx, path, options)
		},
		logger: logger.With().Str("component", "stt").Str("provider", deepgramProvider).Logger(),
	}
}

// Transcribe sends the file at audioPath and returns its transcript
func (d *DeepgramClient) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	start := time.Now()
	t, err := d.transcribe(ctx, audioPath)

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	observability.RecordProviderCall(deepgramProvider, outcome, time.Since(start))
	return t, err
}

func (d *DeepgramClient) transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return Transcript{}, &Error{Kind: KindInput, Provider: deepgramProvider, Message: "cannot read audio file", Err: err}
	}

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:          d.model,
		Punctuate:      true,
		DetectLanguage: true,
	}

	res, err := d.fromFile(ctx, audioPath, options)
	if err != nil {
		if ctx.Err() != nil {
			return Transcript{}, &Error{Kind: KindTimeout, Provider: deepgramProvider, Message: "request cancelled", Err: err}
		}
		return Transcript{}, &Error{Kind: KindJobFailed, Provider: deepgramProvider, Message: "transcription request failed", Err: err}
	}

	// The SDK response struct changes between API versions; read it as a tree
	raw, err := json.Marshal(res)
	if err != nil {
		return Transcript{}, &Error{Kind: KindJobFailed, Provider: deepgramProvider, Message: "encoding response", Err: err}
	}
	return d.fromResponse(raw)
}

func (d *DeepgramClient) fromResponse(raw []byte) (Transcript, error) {
	doc, err := jsonvalue.Parse(raw)
	if err != nil {
		return Transcript{}, &Error{Kind: KindJobFailed, Provider: deepgramProvider, Message: "decoding response", Err: err}
	}

	t := deepgramExtractor.extract(doc)
	if t.Text == "" {
		return Transcript{}, &Error{Kind: KindEmptyTranscript, Provider: deepgramProvider, Message: "response carried no transcript"}
	}

	d.logger.Info().
		Str("language", t.Language).
		Str("transcript_path", t.TranscriptPath).
		Msg("Transcription completed")
	return t, nil
}

// NewTranscriber builds the client for the configured provider
func NewTranscriber(cfg *config.Config, logger zerolog.Logger) (Transcriber, error) {
	switch cfg.TranscriptionProvider {
	case config.ProviderGladia:
		return NewGladiaClient(cfg, logger), nil
	case config.ProviderDeepgram:
		return NewDeepgramClient(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown transcription provider %q", cfg.TranscriptionProvider)
}
