package pipeline

import (
	"errors"
	"fmt"
	"io"
)

// Stage names the step a turn was in when it stopped
type Stage string

const (
	StageValidate   Stage = "validate"
	StageUpload     Stage = "upload"
	StageTranscribe Stage = "transcribe"
	StageTranslate  Stage = "translate"
	StageSession    Stage = "session"
	StageDialogue   Stage = "dialogue"
	StageSynthesize Stage = "synthesize"
)

// Kind classifies a failed turn for the caller
type Kind string

const (
	KindInvalidInput   Kind = "invalid_input"
	KindUnintelligible Kind = "unintelligible"
	KindProvider       Kind = "provider_failure"
	KindUnavailable    Kind = "unavailable"
	KindInternal       Kind = "internal"
)

// UnintelligibleMessage is returned when no usable transcript was produced
const UnintelligibleMessage = "Sorry, I couldn't understand the audio. Please try again."

// Failure describes why a turn did not produce audio
type Failure struct {
	Stage   Stage  `json:"stage"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", f.Stage, f.Kind, f.Message)
}

// IsInvalidInput reports whether err is a Failure caused by the request itself
func IsInvalidInput(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindInvalidInput
}

// Result is the outcome of one flow. Failure is set exactly when Success is
// false.
type Result struct {
	Success      bool     `json:"success"`
	ResponseText string   `json:"response_text,omitempty"`
	AudioFile    string   `json:"audio_file,omitempty"`
	Filename     string   `json:"filename,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	Language     string   `json:"detected_language,omitempty"`
	Transcript   string   `json:"transcript,omitempty"`
	Failure      *Failure `json:"error,omitempty"`
}

// AudioRequest is one spoken turn. Audio is read once and spooled to disk.
type AudioRequest struct {
	Audio          io.Reader
	Filename       string // original upload name, used for the format check
	TargetLanguage string
	Character      string
	SessionID      string // empty or unknown starts a new session
}

// TextRequest is one typed turn
type TextRequest struct {
	Text           string
	SourceLanguage string // empty lets the detector decide
	TargetLanguage string
	Character      string
	SessionID      string
}

// SpeechRequest synthesizes text without involving the dialogue model
type SpeechRequest struct {
	Text      string
	Character string
	Language  string
	Filename  string
}

// AudioURL is the content-serving path for an artifact
func AudioURL(filename string) string {
	return "/audio/" + filename
}
