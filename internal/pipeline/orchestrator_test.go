package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/config"
	"github.com/lexiqai/voice-assistant/internal/dialogue"
	"github.com/lexiqai/voice-assistant/internal/session"
	"github.com/lexiqai/voice-assistant/internal/stt"
	"github.com/lexiqai/voice-assistant/internal/tts"
)

type fakeTranscriber struct {
	transcript stt.Transcript
	err        error
	calls      int
	sawPath    string
	sawExists  bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (stt.Transcript, error) {
	f.calls++
	f.sawPath = path
	_, err := os.Stat(path)
	f.sawExists = err == nil
	return f.transcript, f.err
}

type translateCall struct {
	op, text, lang string
}

type fakeTranslator struct {
	mu       sync.Mutex
	detected string
	calls    []translateCall
}

func (f *fakeTranslator) Pivot() string { return "en" }

func (f *fakeTranslator) record(op, text, lang string) {
	f.mu.Lock()
	f.calls = append(f.calls, translateCall{op, text, lang})
	f.mu.Unlock()
}

func (f *fakeTranslator) DetectLanguage(ctx context.Context, text string) string {
	f.record("detect", text, "")
	if f.detected == "" {
		return "en"
	}
	return f.detected
}

func (f *fakeTranslator) ToPivot(ctx context.Context, text, source string) string {
	f.record("to", text, source)
	return "EN(" + text + ")"
}

func (f *fakeTranslator) FromPivot(ctx context.Context, text, target string) string {
	f.record("from", text, target)
	return strings.ToUpper(target) + "(" + text + ")"
}

type fakeResponder struct {
	reply string
	panic bool
	calls int
	seen  []session.Turn
}

func (f *fakeResponder) Respond(ctx context.Context, turns []session.Turn, opts ...dialogue.Option) string {
	f.calls++
	f.seen = turns
	if f.panic {
		panic("model client is nil")
	}
	return f.reply
}

type synthCall struct {
	text, character, language, filename string
}

type fakeSynthesizer struct {
	err   error
	calls []synthCall
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, character, language, filename string) (tts.Artifact, error) {
	f.calls = append(f.calls, synthCall{text, character, language, filename})
	if f.err != nil {
		return tts.Artifact{}, f.err
	}
	name := filename
	if name == "" {
		name = character + "_" + language + "_1700000000_abcd1234.mp3"
	}
	return tts.Artifact{Path: "/out/" + name, Filename: name}, nil
}

type harness struct {
	orch       *Orchestrator
	stt        *fakeTranscriber
	translator *fakeTranslator
	responder  *fakeResponder
	synth      *fakeSynthesizer
	sessions   *session.Store
	tempDir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		stt:        &fakeTranscriber{transcript: stt.Transcript{Text: "hola", Language: "es"}},
		translator: &fakeTranslator{},
		responder:  &fakeResponder{reply: "Hi there"},
		synth:      &fakeSynthesizer{},
		sessions:   session.NewStore("persona", time.Hour, zerolog.Nop()),
		tempDir:    t.TempDir(),
	}
	cfg := &config.Config{
		TempDir:             h.tempDir,
		MaxUploadBytes:      1 << 16,
		SilenceRMSThreshold: 30,
		SessionKeepPairs:    10,
	}
	h.orch = New(Deps{
		Transcriber: h.stt,
		Translator:  h.translator,
		Dialogue:    h.responder,
		Sessions:    h.sessions,
		Synthesizer: h.synth,
		Catalog:     tts.DefaultCatalog(),
	}, cfg, zerolog.Nop())
	return h
}

func (h *harness) spooledFiles(t *testing.T) []string {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(h.tempDir, "upload-*"))
	return matches
}

func TestProcessTextPivotSkipsTranslation(t *testing.T) {
	h := newHarness(t)

	res := h.orch.ProcessText(context.Background(), TextRequest{
		Text:           "Hello",
		SourceLanguage: "English",
		TargetLanguage: "English",
		Character:      "Adam",
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Failure)
	}
	if res.ResponseText != "Hi there" {
		t.Errorf("ResponseText = %q", res.ResponseText)
	}
	if !strings.HasPrefix(res.AudioFile, "/audio/Adam_en_") {
		t.Errorf("AudioFile = %q", res.AudioFile)
	}
	if len(h.translator.calls) != 0 {
		t.Errorf("expected no translation calls, got %+v", h.translator.calls)
	}
	if len(h.synth.calls) != 1 || h.synth.calls[0].text != "Hi there" || h.synth.calls[0].language != "en" {
		t.Errorf("unexpected synthesis calls %+v", h.synth.calls)
	}

	turns, _ := h.sessions.History(res.SessionID)
	if len(turns) != 3 || turns[1].Content != "Hello" || turns[2].Content != "Hi there" {
		t.Errorf("unexpected history %+v", turns)
	}
}

func TestProcessTextTranslatesBothWays(t *testing.T) {
	h := newHarness(t)

	res := h.orch.ProcessText(context.Background(), TextRequest{
		Text:           "Hola",
		SourceLanguage: "es-MX",
		TargetLanguage: "Spanish",
		Character:      "Meera",
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Failure)
	}
	if res.ResponseText != "ES(Hi there)" {
		t.Errorf("ResponseText = %q", res.ResponseText)
	}

	want := []translateCall{{"to", "Hola", "es"}, {"from", "Hi there", "es"}}
	if len(h.translator.calls) != 2 || h.translator.calls[0] != want[0] || h.translator.calls[1] != want[1] {
		t.Errorf("translation calls = %+v", h.translator.calls)
	}

	// The session keeps pivot-language text only
	turns, _ := h.sessions.History(res.SessionID)
	if turns[1].Content != "EN(Hola)" || turns[2].Content != "Hi there" {
		t.Errorf("unexpected history %+v", turns)
	}
	if lang, _ := h.sessions.Language(res.SessionID); lang != "es" {
		t.Errorf("session language = %q", lang)
	}
	if h.synth.calls[0].text != "ES(Hi there)" || h.synth.calls[0].language != "es" {
		t.Errorf("unexpected synthesis call %+v", h.synth.calls[0])
	}
}

func TestProcessTextDetectsMissingSource(t *testing.T) {
	h := newHarness(t)
	h.translator.detected = "fr"

	res := h.orch.ProcessText(context.Background(), TextRequest{Text: "Bonjour", TargetLanguage: "en", Character: "Adam"})
	if !res.Success || res.Language != "fr" {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.translator.calls[0].op != "detect" || h.translator.calls[1] != (translateCall{"to", "Bonjour", "fr"}) {
		t.Errorf("translation calls = %+v", h.translator.calls)
	}
}

func TestProcessTextContinuesSession(t *testing.T) {
	h := newHarness(t)
	req := TextRequest{Text: "Hello", SourceLanguage: "en", TargetLanguage: "en", Character: "Adam"}

	first := h.orch.ProcessText(context.Background(), req)
	req.SessionID = first.SessionID
	second := h.orch.ProcessText(context.Background(), req)

	if second.SessionID != first.SessionID {
		t.Fatalf("session not continued: %s vs %s", first.SessionID, second.SessionID)
	}
	if len(h.responder.seen) != 4 {
		t.Errorf("dialogue saw %d turns, want 4", len(h.responder.seen))
	}

	req.SessionID = "expired-token"
	third := h.orch.ProcessText(context.Background(), req)
	if third.SessionID == "expired-token" || third.SessionID == first.SessionID {
		t.Errorf("unknown session should start fresh, got %s", third.SessionID)
	}
}

func TestProcessTextTrimsSession(t *testing.T) {
	h := newHarness(t)
	req := TextRequest{Text: "Hello", SourceLanguage: "en", TargetLanguage: "en", Character: "Adam"}

	res := h.orch.ProcessText(context.Background(), req)
	req.SessionID = res.SessionID
	for i := 0; i < 14; i++ {
		h.orch.ProcessText(context.Background(), req)
	}

	turns, _ := h.sessions.History(res.SessionID)
	if len(turns) != 21 || turns[0].Role != session.RoleSystem {
		t.Errorf("history length = %d, want 21", len(turns))
	}
}

func TestProcessTextValidation(t *testing.T) {
	tests := []struct {
		name string
		req  TextRequest
	}{
		{"unknown character", TextRequest{Text: "hi", TargetLanguage: "English", Character: "Bob"}},
		{"unsupported language", TextRequest{Text: "hi", TargetLanguage: "Tamil", Character: "Adam"}},
		{"empty text", TextRequest{Text: "  ", TargetLanguage: "English", Character: "Adam"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res := h.orch.ProcessText(context.Background(), tt.req)
			if res.Success || res.Failure == nil || res.Failure.Kind != KindInvalidInput {
				t.Fatalf("unexpected result %+v", res)
			}
			if res.Failure.Stage != StageValidate {
				t.Errorf("stage = %s", res.Failure.Stage)
			}
			if h.responder.calls != 0 || len(h.synth.calls) != 0 || len(h.translator.calls) != 0 {
				t.Error("validation failure reached a provider")
			}
		})
	}
}

func TestProcessTextSynthesisFailures(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&tts.Error{Kind: tts.KindUnavailable, Message: "open"}, KindUnavailable},
		{&tts.Error{Kind: tts.KindExhausted, Message: "failed after 3 attempts"}, KindProvider},
		{&tts.Error{Kind: tts.KindTextTooLong, Message: "too long"}, KindInvalidInput},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.synth.err = tt.err

		res := h.orch.ProcessText(context.Background(), TextRequest{Text: "hi", SourceLanguage: "en", TargetLanguage: "en", Character: "Adam"})
		if res.Success || res.Failure.Kind != tt.want || res.Failure.Stage != StageSynthesize {
			t.Errorf("%v: unexpected failure %+v", tt.err, res.Failure)
		}
		if res.ResponseText != "Hi there" || res.SessionID == "" {
			t.Errorf("%v: reply and session should still be reported: %+v", tt.err, res)
		}
	}
}

func TestProcessTextRecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.responder.panic = true

	res := h.orch.ProcessText(context.Background(), TextRequest{Text: "hi", SourceLanguage: "en", TargetLanguage: "en", Character: "Adam"})
	if res.Success || res.Failure.Kind != KindInternal || res.Failure.Stage != StageDialogue {
		t.Errorf("unexpected result %+v", res.Failure)
	}
}

func TestProcessAudio(t *testing.T) {
	h := newHarness(t)

	res := h.orch.ProcessAudio(context.Background(), AudioRequest{
		Audio:          strings.NewReader("ID3 not really mp3"),
		Filename:       "question.mp3",
		TargetLanguage: "Spanish",
		Character:      "Meera",
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Failure)
	}
	if res.Transcript != "hola" || res.Language != "es" {
		t.Errorf("unexpected result %+v", res)
	}
	if !h.stt.sawExists || filepath.Ext(h.stt.sawPath) != ".mp3" {
		t.Errorf("transcriber saw %q (exists %v)", h.stt.sawPath, h.stt.sawExists)
	}
	if files := h.spooledFiles(t); len(files) != 0 {
		t.Errorf("spooled upload not removed: %v", files)
	}
	for _, c := range h.translator.calls {
		if c.op == "detect" {
			t.Error("transcription language should make detection unnecessary")
		}
	}
}

func TestProcessAudioFallsBackToDetector(t *testing.T) {
	h := newHarness(t)
	h.stt.transcript = stt.Transcript{Text: "hallo"}
	h.translator.detected = "de"

	res := h.orch.ProcessAudio(context.Background(), AudioRequest{
		Audio: strings.NewReader("x"), Filename: "a.ogg", TargetLanguage: "English", Character: "Mark",
	})
	if !res.Success || res.Language != "de" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestProcessAudioUnintelligible(t *testing.T) {
	cases := map[string]*fakeTranscriber{
		"error": {err: &stt.Error{Kind: stt.KindTimeout, Provider: "gladia", Message: "gave up"}},
		"empty": {transcript: stt.Transcript{Text: "   "}},
	}
	for name, fake := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.orch.deps.Transcriber = fake

			res := h.orch.ProcessAudio(context.Background(), AudioRequest{
				Audio: strings.NewReader("x"), Filename: "a.mp3", TargetLanguage: "English", Character: "Adam",
			})
			if res.Success || res.Failure.Kind != KindUnintelligible || res.Failure.Message != UnintelligibleMessage {
				t.Fatalf("unexpected result %+v", res.Failure)
			}
			if h.responder.calls != 0 || len(h.synth.calls) != 0 || h.sessions.Len() != 0 {
				t.Error("failed transcription should stop the turn")
			}
			if files := h.spooledFiles(t); len(files) != 0 {
				t.Errorf("spooled upload not removed: %v", files)
			}
		})
	}
}

func TestProcessAudioSilentWAV(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer
	if err := audio.WriteWAV(&buf, make([]int16, 8000), 8000); err != nil {
		t.Fatal(err)
	}

	res := h.orch.ProcessAudio(context.Background(), AudioRequest{
		Audio: &buf, Filename: "silence.wav", TargetLanguage: "English", Character: "Adam",
	})
	if res.Success || res.Failure.Kind != KindUnintelligible {
		t.Fatalf("unexpected result %+v", res.Failure)
	}
	if h.stt.calls != 0 {
		t.Error("silent upload should not be transcribed")
	}
	if files := h.spooledFiles(t); len(files) != 0 {
		t.Errorf("spooled upload not removed: %v", files)
	}
}

func TestProcessAudioRejectsInput(t *testing.T) {
	tests := []struct {
		name string
		req  AudioRequest
	}{
		{"bad extension", AudioRequest{Audio: strings.NewReader("x"), Filename: "notes.txt", TargetLanguage: "English", Character: "Adam"}},
		{"no audio", AudioRequest{Filename: "a.wav", TargetLanguage: "English", Character: "Adam"}},
		{"too large", AudioRequest{Audio: bytes.NewReader(make([]byte, 1<<17)), Filename: "a.mp3", TargetLanguage: "English", Character: "Adam"}},
		{"unknown character", AudioRequest{Audio: strings.NewReader("x"), Filename: "a.mp3", TargetLanguage: "English", Character: "Nobody"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res := h.orch.ProcessAudio(context.Background(), tt.req)
			if res.Success || res.Failure.Kind != KindInvalidInput {
				t.Fatalf("unexpected result %+v", res.Failure)
			}
			if h.stt.calls != 0 {
				t.Error("rejected input reached the transcriber")
			}
			if files := h.spooledFiles(t); len(files) != 0 {
				t.Errorf("spooled upload not removed: %v", files)
			}
		})
	}
}

func TestGenerateSpeech(t *testing.T) {
	h := newHarness(t)

	res := h.orch.GenerateSpeech(context.Background(), SpeechRequest{Text: "Welcome", Character: "Monika", Language: "Hindi", Filename: "welcome.mp3"})
	if !res.Success || res.AudioFile != "/audio/welcome.mp3" {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.responder.calls != 0 {
		t.Error("speech generation should not call the dialogue model")
	}

	h.synth.err = &tts.Error{Kind: tts.KindUnknownCharacter, Message: "character 'Bob' not found"}
	res = h.orch.GenerateSpeech(context.Background(), SpeechRequest{Text: "x", Character: "Bob", Language: "English"})
	if res.Success || res.Failure.Kind != KindInvalidInput || res.Failure.Message != "character 'Bob' not found" {
		t.Errorf("unexpected failure %+v", res.Failure)
	}
}

func TestListings(t *testing.T) {
	h := newHarness(t)

	if chars := h.orch.ListCharacters(); len(chars) != 6 {
		t.Errorf("ListCharacters returned %d entries", len(chars))
	}
	langs, err := h.orch.ListSupportedLanguages("Neeraj")
	if err != nil || len(langs) != 6 || langs[0] != "Hindi" {
		t.Errorf("ListSupportedLanguages = %v, %v", langs, err)
	}
	if _, err := h.orch.ListSupportedLanguages("Bob"); !IsInvalidInput(err) {
		t.Errorf("err = %v, want invalid input", err)
	}
}
