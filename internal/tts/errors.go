package tts

import (
	"errors"
	"fmt"
)

// Kind classifies synthesis failures
type Kind int

const (
	KindEmptyText Kind = iota + 1
	KindTextTooLong
	KindUnknownCharacter
	KindUnsupportedLanguage
	KindExhausted
	KindProviderStatus
	KindTimeout
	KindTransport
	KindUnavailable
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindEmptyText:
		return "empty_text"
	case KindTextTooLong:
		return "text_too_long"
	case KindUnknownCharacter:
		return "unknown_character"
	case KindUnsupportedLanguage:
		return "unsupported_language"
	case KindExhausted:
		return "exhausted"
	case KindProviderStatus:
		return "provider_status"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindUnavailable:
		return "unavailable"
	case KindStorage:
		return "storage"
	}
	return "unknown"
}

// IsInput reports whether the kind is a caller mistake rather than a
// provider failure
func (k Kind) IsInput() bool {
	switch k {
	case KindEmptyText, KindTextTooLong, KindUnknownCharacter, KindUnsupportedLanguage:
		return true
	}
	return false
}

// Error is returned by Synthesize
type Error struct {
	Kind    Kind
	Message string
	Status  int // provider HTTP status, when one was received
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tts %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("tts %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or 0 when err is not a synthesis error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
