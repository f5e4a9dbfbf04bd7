package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/lexiqai/voice-assistant/internal/audio"
	"github.com/lexiqai/voice-assistant/internal/observability"
	"github.com/lexiqai/voice-assistant/internal/pipeline"
)

// multipart fields beyond the audio part are small; keep them in memory
const formMemory = 1 << 20

type audioForm struct {
	file           *os.File
	cleanup        func()
	filename       string
	targetLanguage string
	character      string
	sessionID      string
}

// readAudioForm parses the multipart upload. The caller owns form.file.
func (s *Server) readAudioForm(w http.ResponseWriter, r *http.Request) (*audioForm, bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+formMemory)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", "audio upload is too large")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form with an 'audio' file")
		return nil, false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_audio", "no audio file provided")
		return nil, false
	}
	defer file.Close()

	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "missing_audio", "no audio file selected")
		return nil, false
	}
	format := audio.FormatFromName(header.Filename)
	if format == audio.FormatUnknown {
		respondError(w, http.StatusBadRequest, "invalid_format", "unsupported audio format; use .wav, .mp3 or .ogg")
		return nil, false
	}

	path, cleanup, err := audio.Spool(file, s.tempDir, format.Ext(), s.maxUploadBytes)
	if err != nil {
		if errors.Is(err, audio.ErrTooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "too_large", "audio upload is too large")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "internal", "could not store upload")
		return nil, false
	}
	f, err := os.Open(path)
	if err != nil {
		cleanup()
		respondError(w, http.StatusInternalServerError, "internal", "could not store upload")
		return nil, false
	}
	observability.RecordAudioBytes("in", header.Size)

	return &audioForm{
		file:           f,
		cleanup:        cleanup,
		filename:       header.Filename,
		targetLanguage: formValue(r, "language", "target_language"),
		character:      formValue(r, "character"),
		sessionID:      formValue(r, "session_id"),
	}, true
}

func (f *audioForm) close() {
	f.file.Close()
	f.cleanup()
}

func (f *audioForm) request() pipeline.AudioRequest {
	return pipeline.AudioRequest{
		Audio:          f.file,
		Filename:       f.filename,
		TargetLanguage: f.targetLanguage,
		Character:      f.character,
		SessionID:      f.sessionID,
	}
}

func formValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.FormValue(k)); v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readAudioForm(w, r)
	if !ok {
		return
	}
	defer form.close()

	respondResult(w, s.pipeline.ProcessAudio(r.Context(), form.request()))
}

func (s *Server) handleProcessAudioAsync(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "task queue not configured")
		return
	}
	form, ok := s.readAudioForm(w, r)
	if !ok {
		return
	}

	logger := observability.FromContext(r.Context(), s.logger)
	id, err := s.queue.EnqueueWithRelease(func(ctx context.Context) (any, error) {
		res := s.pipeline.ProcessAudio(observability.ContextWithLogger(ctx, logger), form.request())
		if !res.Success {
			return res, res.Failure
		}
		return res, nil
	}, form.close)
	if err != nil {
		form.close()
		respondError(w, http.StatusServiceUnavailable, "queue_full", err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"success":    true,
		"task_id":    id,
		"status_url": "/tasks/" + id,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "task queue not configured")
		return
	}
	task, ok := s.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "task_not_found", "task not found")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type textRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Language       string `json:"language"`
	Character      string `json:"character"`
	SessionID      string `json:"session_id"`
}

func (req textRequest) toPipeline() pipeline.TextRequest {
	target := req.TargetLanguage
	if target == "" {
		target = req.Language
	}
	return pipeline.TextRequest{
		Text:           req.Text,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: target,
		Character:      req.Character,
		SessionID:      req.SessionID,
	}
}

func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected a JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "no text provided")
		return
	}
	respondResult(w, s.pipeline.ProcessText(r.Context(), req.toPipeline()))
}

type speechRequest struct {
	Text      string `json:"text"`
	Character string `json:"character"`
	Language  string `json:"language"`
	Filename  string `json:"filename"`
}

func (s *Server) handleGenerateSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected a JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "no text provided")
		return
	}
	if utf8.RuneCountInString(req.Text) > MaxSpeechChars {
		respondError(w, http.StatusBadRequest, "text_too_long", fmt.Sprintf("text exceeds %d characters", MaxSpeechChars))
		return
	}

	respondResult(w, s.pipeline.GenerateSpeech(r.Context(), pipeline.SpeechRequest{
		Text:      req.Text,
		Character: req.Character,
		Language:  req.Language,
		Filename:  req.Filename,
	}))
}

func (s *Server) handleGetLanguages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Character string `json:"character"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Character) == "" {
		respondError(w, http.StatusBadRequest, "missing_character", "no character provided")
		return
	}

	languages, err := s.pipeline.ListSupportedLanguages(req.Character)
	if err != nil {
		message := err.Error()
		var f *pipeline.Failure
		if errors.As(err, &f) {
			message = f.Message
		}
		respondError(w, http.StatusNotFound, "character_not_found", message)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "languages": languages})
}

func (s *Server) handleGetCharacters(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.pipeline.ListCharacters())
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	path, err := s.artifacts.Path(chi.URLParam(r, "filename"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_filename", err.Error())
		return
	}
	f, err := os.Open(path)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "audio file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondError(w, http.StatusNotFound, "not_found", "audio file not found")
		return
	}
	w.Header().Set("Content-Type", audio.FormatMP3.ContentType())
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
