package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/dialogue"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/session"
	"github.com/lexiqai/voice-assistant/internal/stt"
	"github.com/lexiqai/voice-assistant/internal/translate"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

// Translator routes text through the pivot language
type Translator interface {
	Pivot() string
	DetectLanguage(ctx context.Context, text string) string
	ToPivot(ctx context.Context, text, source string) string
	FromPivot(ctx context.Context, text, target string) string
}

// Responder produces the assistant's reply for a conversation
type Responder interface {
	Respond(ctx context.Context, turns []session.Turn, opts ...dialogue.Option) string
}

// Deps are the collaborators an Orchestrator drives
type Deps struct {
	Transcriber stt.Transcriber
	Translator  Translator
	Dialogue    Responder
	Sessions    *session.Store
	Synthesizer tts.Synthesizer
	Catalog     *tts.Catalog
}

// Orchestrator runs audio-in and text-in turns end to end. Its methods never
// return errors or panic; every outcome is a Result.
type Orchestrator struct {
	deps             Deps
	tempDir          string
	maxUploadBytes   int64
	silenceThreshold float64
	keepPairs        int
	logger           zerolog.Logger
}

// New creates an orchestrator
func New(deps Deps, cfg *config.Config, logger zerolog.Logger) *Orchestrator {
	keep := cfg.SessionKeepPairs
	if keep <= 0 {
		keep = 10
	}
	return &Orchestrator{
		deps:             deps,
		tempDir:          cfg.ResolvedTempDir(),
		maxUploadBytes:   cfg.MaxUploadBytes,
		silenceThreshold: cfg.SilenceRMSThreshold,
		keepPairs:        keep,
		logger:           logger.With().Str("component", "pipeline").Logger(),
	}
}

// turn carries per-call state through a flow
type turn struct {
	flow    string
	stage   Stage
	metrics *observability.TurnMetrics
	logger  zerolog.Logger
}

func (o *Orchestrator) begin(ctx context.Context, flow string) (context.Context, *turn) {
	logger := observability.FromContext(ctx, o.logger)
	if zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		logger = logger.With().Str("correlation_id", observability.NewCorrelationID()).Logger()
	}
	logger = logger.With().Str("flow", flow).Logger()

	t := &turn{
		flow:    flow,
		stage:   StageValidate,
		metrics: observability.NewTurnMetrics(flow),
		logger:  logger,
	}
	return observability.ContextWithLogger(ctx, logger), t
}

func (t *turn) enter(stage Stage) {
	t.stage = stage
	t.metrics.StageStart(string(stage))
}

func (t *turn) leave(success bool) {
	t.metrics.StageEnd(string(t.stage), success)
}

func (t *turn) fail(kind Kind, message string) Result {
	t.metrics.RecordError(string(kind), string(t.stage))
	return Result{Failure: &Failure{Stage: t.stage, Kind: kind, Message: message}}
}

// finish records the outcome and converts panics into an internal failure
func (o *Orchestrator) finish(t *turn, res *Result) {
	if r := recover(); r != nil {
		t.logger.Error().
			Interface("panic", r).
			Str("stage", string(t.stage)).
			Bytes("stack", debug.Stack()).
			Msg("Recovered from panic in pipeline")
		*res = t.fail(KindInternal, "internal error")
	}

	status := "success"
	if !res.Success {
		status = "failure"
		if res.Failure == nil {
			res.Failure = &Failure{Stage: t.stage, Kind: KindInternal, Message: "unknown failure"}
		}
		t.logger.Warn().
			Str("stage", string(res.Failure.Stage)).
			Str("kind", string(res.Failure.Kind)).
			Str("message", res.Failure.Message).
			Msg("Turn failed")
	}
	t.metrics.Finish(status)
}

// ProcessAudio transcribes an uploaded recording and answers it with speech
func (o *Orchestrator) ProcessAudio(ctx context.Context, req AudioRequest) (res Result) {
	ctx, t := o.begin(ctx, "audio")
	defer o.finish(t, &res)

	character, target, failure := o.validateVoice(t, req.Character, req.TargetLanguage)
	if failure != nil {
		return *failure
	}
	format := audio.FormatFromName(req.Filename)
	if format == audio.FormatUnknown {
		return t.fail(KindInvalidInput, "unsupported audio format; use .wav, .mp3 or .ogg")
	}
	if req.Audio == nil {
		return t.fail(KindInvalidInput, "no audio provided")
	}

	t.enter(StageUpload)
	path, cleanup, err := audio.Spool(req.Audio, o.tempDir, format.Ext(), o.maxUploadBytes)
	if err != nil {
		t.leave(false)
		if errors.Is(err, audio.ErrTooLarge) {
			return t.fail(KindInvalidInput, fmt.Sprintf("audio exceeds the %d byte upload limit", o.maxUploadBytes))
		}
		t.logger.Error().Err(err).Msg("Failed to spool upload")
		return t.fail(KindInternal, "could not store uploaded audio")
	}
	defer cleanup()
	t.leave(true)

	if format == audio.FormatWAV && o.silenceThreshold > 0 {
		silent, err := audio.IsSilentWAV(path, o.silenceThreshold)
		switch {
		case err != nil:
			t.logger.Debug().Err(err).Msg("Silence check skipped")
		case silent:
			t.stage = StageTranscribe
			return t.fail(KindUnintelligible, UnintelligibleMessage)
		}
	}

	t.enter(StageTranscribe)
	transcript, err := o.deps.Transcriber.Transcribe(ctx, path)
	if err != nil || strings.TrimSpace(transcript.Text) == "" {
		t.leave(false)
		t.logger.Warn().Err(err).Str("kind", stt.KindOf(err).String()).Msg("Transcription produced no usable text")
		return t.fail(KindUnintelligible, UnintelligibleMessage)
	}
	t.leave(true)

	source, ok := translate.Code(transcript.Language)
	if !ok {
		source = o.deps.Translator.DetectLanguage(ctx, transcript.Text)
	}

	res = o.converse(ctx, t, conversation{
		text:      transcript.Text,
		source:    source,
		target:    target,
		character: character,
		sessionID: req.SessionID,
	})
	res.Transcript = transcript.Text
	return res
}

// ProcessText answers a typed message with speech
func (o *Orchestrator) ProcessText(ctx context.Context, req TextRequest) (res Result) {
	ctx, t := o.begin(ctx, "text")
	defer o.finish(t, &res)

	character, target, failure := o.validateVoice(t, req.Character, req.TargetLanguage)
	if failure != nil {
		return *failure
	}
	if strings.TrimSpace(req.Text) == "" {
		return t.fail(KindInvalidInput, "text cannot be empty")
	}

	source, ok := translate.Code(req.SourceLanguage)
	if !ok {
		source = o.deps.Translator.DetectLanguage(ctx, req.Text)
	}

	return o.converse(ctx, t, conversation{
		text:      req.Text,
		source:    source,
		target:    target,
		character: character,
		sessionID: req.SessionID,
	})
}

// GenerateSpeech synthesizes text directly with a character's voice
func (o *Orchestrator) GenerateSpeech(ctx context.Context, req SpeechRequest) (res Result) {
	ctx, t := o.begin(ctx, "speech")
	defer o.finish(t, &res)

	t.enter(StageSynthesize)
	artifact, err := o.deps.Synthesizer.Synthesize(ctx, req.Text, req.Character, req.Language, req.Filename)
	if err != nil {
		t.leave(false)
		return o.synthesisFailure(t, err)
	}
	t.leave(true)

	return Result{
		Success:   true,
		AudioFile: AudioURL(artifact.Filename),
		Filename:  artifact.Filename,
	}
}

// ListCharacters describes every available voice
func (o *Orchestrator) ListCharacters() map[string]tts.CharacterInfo {
	return o.deps.Catalog.Info()
}

// ListSupportedLanguages returns the language names a character speaks
func (o *Orchestrator) ListSupportedLanguages(character string) ([]string, error) {
	ch, ok := o.deps.Catalog.Get(character)
	if !ok {
		return nil, &Failure{Stage: StageValidate, Kind: KindInvalidInput, Message: fmt.Sprintf("character '%s' not found", character)}
	}
	return ch.LanguageNames(), nil
}

// validateVoice resolves the character and target language before any
// provider is called
func (o *Orchestrator) validateVoice(t *turn, character, target string) (string, string, *Result) {
	ch, ok := o.deps.Catalog.Get(character)
	if !ok {
		r := t.fail(KindInvalidInput, fmt.Sprintf("character '%s' not found", character))
		return "", "", &r
	}
	code, ok := ch.LanguageCode(target)
	if !ok {
		r := t.fail(KindInvalidInput, fmt.Sprintf("language '%s' not supported by character '%s'", target, ch.Name))
		return "", "", &r
	}
	return ch.Name, code, nil
}

type conversation struct {
	text      string
	source    string
	target    string
	character string
	sessionID string
}

// converse runs the shared tail of both flows: pivot translation, dialogue,
// target translation, session bookkeeping and synthesis
func (o *Orchestrator) converse(ctx context.Context, t *turn, c conversation) Result {
	sessions := o.deps.Sessions
	translator := o.deps.Translator

	t.enter(StageSession)
	token := c.sessionID
	if token == "" || !sessions.Exists(token) {
		token = sessions.Create()
	}
	t.logger = t.logger.With().Str("session_id", token).Logger()
	ctx = observability.ContextWithLogger(ctx, t.logger)
	if err := sessions.SetLanguage(token, c.source); err != nil {
		t.leave(false)
		return o.sessionFailure(t, token, err)
	}
	t.leave(true)

	t.enter(StageTranslate)
	pivotText := c.text
	if c.source != translator.Pivot() {
		pivotText = translator.ToPivot(ctx, c.text, c.source)
	}
	t.leave(true)

	t.enter(StageDialogue)
	if err := sessions.Append(token, session.RoleUser, pivotText); err != nil {
		t.leave(false)
		return o.sessionFailure(t, token, err)
	}
	history, err := sessions.History(token)
	if err != nil {
		t.leave(false)
		return o.sessionFailure(t, token, err)
	}
	reply := o.deps.Dialogue.Respond(ctx, history)
	t.leave(true)

	t.enter(StageTranslate)
	spoken := reply
	if c.target != translator.Pivot() {
		spoken = translator.FromPivot(ctx, reply, c.target)
	}
	t.leave(true)

	t.enter(StageSession)
	if err := sessions.Append(token, session.RoleAssistant, reply); err != nil {
		t.leave(false)
		return o.sessionFailure(t, token, err)
	}
	if err := sessions.Trim(token, o.keepPairs); err != nil {
		t.leave(false)
		return o.sessionFailure(t, token, err)
	}
	t.leave(true)

	t.enter(StageSynthesize)
	start := time.Now()
	artifact, err := o.deps.Synthesizer.Synthesize(ctx, spoken, c.character, c.target, "")
	if err != nil {
		t.leave(false)
		res := o.synthesisFailure(t, err)
		res.ResponseText = spoken
		res.SessionID = token
		res.Language = c.source
		return res
	}
	t.leave(true)

	t.logger.Info().
		Str("source_language", c.source).
		Str("target_language", c.target).
		Str("file", artifact.Filename).
		Dur("synthesis", time.Since(start)).
		Msg("Turn completed")

	return Result{
		Success:      true,
		ResponseText: spoken,
		AudioFile:    AudioURL(artifact.Filename),
		Filename:     artifact.Filename,
		SessionID:    token,
		Language:     c.source,
	}
}

func (o *Orchestrator) sessionFailure(t *turn, token string, err error) Result {
	// Only a sweep racing this turn can remove the session
	t.logger.Error().Err(err).Str("session_id", token).Msg("Session disappeared mid-turn")
	res := t.fail(KindInternal, "session expired during the request")
	res.SessionID = token
	return res
}

func (o *Orchestrator) synthesisFailure(t *turn, err error) Result {
	var e *tts.Error
	if !errors.As(err, &e) {
		t.logger.Error().Err(err).Msg("Speech synthesis failed")
		return t.fail(KindInternal, "speech synthesis failed")
	}
	switch {
	case e.Kind.IsInput():
		return t.fail(KindInvalidInput, e.Message)
	case e.Kind == tts.KindUnavailable:
		return t.fail(KindUnavailable, "speech service is temporarily unavailable")
	default:
		return t.fail(KindProvider, e.Error())
	}
}
