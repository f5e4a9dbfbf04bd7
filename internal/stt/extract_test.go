package stt

import (
	"testing"

	"github.com/lexiqai/voice-assistant/internal/jsonvalue"
)

func parseDoc(t *testing.T, doc string) *jsonvalue.Value {
	t.Helper()
	v, err := jsonvalue.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return v
}

func TestGladiaExtractor(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		text         string
		textPath     string
		language     string
		languagePath string
	}{
		{
			name:         "tagged paths",
			doc:          `{"result":{"transcription":{"full_transcript":"Bonjour","language":"FR"}}}`,
			text:         "Bonjour",
			textPath:     "result.transcription.full_transcript",
			language:     "fr",
			languagePath: "result.transcription.language",
		},
		{
			name:         "detected_language before metadata",
			doc:          `{"result":{"metadata":{"language":"de"},"transcription":{"full_transcript":"x","detected_language":"it"}}}`,
			text:         "x",
			textPath:     "result.transcription.full_transcript",
			language:     "it",
			languagePath: "result.transcription.detected_language",
		},
		{
			name:         "metadata language",
			doc:          `{"result":{"metadata":{"language":"de"},"transcription":{"full_transcript":"x"}}}`,
			text:         "x",
			textPath:     "result.transcription.full_transcript",
			language:     "de",
			languagePath: "result.metadata.language",
		},
		{
			name:         "transcript nested three levels inside a sequence",
			doc:          `{"result":{"transcription":{},"chunks":[{"a":{"b":{"c":{"full_transcript":"deep"}}}}]},"job":{"spoken_language":"pt"}}`,
			text:         "deep",
			textPath:     "result.chunks[0].a.b.c.full_transcript",
			language:     "pt",
			languagePath: "job.spoken_language",
		},
		{
			name:         "language list takes first string",
			doc:          `{"result":{"transcription":{"full_transcript":"x"}},"extra":{"detected_language":[null,"ru","uk"]}}`,
			text:         "x",
			textPath:     "result.transcription.full_transcript",
			language:     "ru",
			languagePath: "extra.detected_language",
		},
		{
			name:         "locale fallback",
			doc:          `{"result":{"transcription":{"full_transcript":"x"}},"settings":{"locale":"es-MX"}}`,
			text:         "x",
			textPath:     "result.transcription.full_transcript",
			language:     "es",
			languagePath: "settings.locale",
		},
		{
			name:     "no language",
			doc:      `{"result":{"transcription":{"full_transcript":"x"}}}`,
			text:     "x",
			textPath: "result.transcription.full_transcript",
		},
		{
			name: "nothing found",
			doc:  `{"status":"done"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gladiaExtractor.extract(parseDoc(t, tt.doc))
			if got.Text != tt.text || got.TranscriptPath != tt.textPath {
				t.Errorf("transcript: expected %q at %q, got %q at %q", tt.text, tt.textPath, got.Text, got.TranscriptPath)
			}
			if got.Language != tt.language || got.LanguagePath != tt.languagePath {
				t.Errorf("language: expected %q at %q, got %q at %q", tt.language, tt.languagePath, got.Language, got.LanguagePath)
			}
		})
	}
}

func TestDeepgramExtractor(t *testing.T) {
	doc := parseDoc(t, `{"metadata":{"request_id":"r"},"results":{"channels":[{"detected_language":"hi","alternatives":[{"transcript":"namaste","confidence":0.9}]}]}}`)

	got := deepgramExtractor.extract(doc)
	if got.Text != "namaste" || got.Language != "hi" {
		t.Errorf("Unexpected transcript %+v", got)
	}
}
