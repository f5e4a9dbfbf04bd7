package stt

import (
	"context"
	"errors"
	"fmt"
)

// Transcript is the outcome of a finished transcription job
type Transcript struct {
	// Text is the full transcript
	Text string

	// Language is the detected language code, "" when the provider did not report one
	Language string

	// TranscriptPath and LanguagePath record where in the provider response
	// each value was found, for diagnostics
	TranscriptPath string
	LanguagePath   string
}

// Transcriber converts a recorded audio file to text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// Kind classifies transcription failures
type Kind int

const (
	KindInput Kind = iota + 1
	KindUpload
	KindSubmission
	KindJobFailed
	KindTimeout
	KindEmptyTranscript
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindUpload:
		return "upload"
	case KindSubmission:
		return "submission"
	case KindJobFailed:
		return "job_failed"
	case KindTimeout:
		return "timeout"
	case KindEmptyTranscript:
		return "empty_transcript"
	}
	return "unknown"
}

// Error is returned by every Transcriber in this package
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s transcription %s: %s", e.Provider, e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from err, or 0 when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
