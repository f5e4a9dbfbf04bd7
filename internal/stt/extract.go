package stt

import (
	"strings"

	"github.com/lexiqai/voice-assistant/internal/jsonvalue"
)

// extractor locates transcript and language in a provider's result document.
// Fixed paths are tried first; when none yields a value the whole document is
// searched depth-first for the fallback keys, in order.
type extractor struct {
	transcriptPaths []string
	transcriptKeys  []string
	languagePaths   []string
	languageKeys    []string
	localeKey       string
}

var gladiaExtractor = extractor{
	transcriptPaths: []string{"result.transcription.full_transcript"},
	transcriptKeys:  []string{"full_transcript"},
	languagePaths: []string{
		"result.transcription.language",
		"result.transcription.detected_language",
		"result.metadata.language",
		"result.transcription.languages",
	},
	languageKeys: []string{"language", "detected_language", "spoken_language"},
	localeKey:    "locale",
}

var deepgramExtractor = extractor{
	transcriptPaths: []string{"results.channels[0].alternatives[0].transcript"},
	transcriptKeys:  []string{"transcript"},
	languagePaths:   []string{"results.channels[0].detected_language"},
	languageKeys:    []string{"detected_language", "language"},
}

func (x extractor) extract(doc *jsonvalue.Value) Transcript {
	var t Transcript
	t.Text, t.TranscriptPath = firstString(doc, x.transcriptPaths, x.transcriptKeys)
	t.Text = strings.TrimSpace(t.Text)

	lang, path := firstString(doc, x.languagePaths, x.languageKeys)
	if lang == "" && x.localeKey != "" {
		if v, p, ok := doc.Find(x.localeKey); ok {
			if locale, ok := v.Str(); ok && locale != "" {
				lang, path = strings.SplitN(locale, "-", 2)[0], p
			}
		}
	}
	t.Language = strings.ToLower(strings.TrimSpace(lang))
	if t.Language != "" {
		t.LanguagePath = path
	}
	return t
}

func firstString(doc *jsonvalue.Value, paths, keys []string) (string, string) {
	for _, p := range paths {
		if s, ok := doc.Lookup(p).FirstString(); ok && strings.TrimSpace(s) != "" {
			return s, p
		}
	}
	for _, key := range keys {
		v, p, ok := doc.Find(key)
		if !ok {
			continue
		}
		if s, ok := v.FirstString(); ok && strings.TrimSpace(s) != "" {
			return s, p
		}
	}
	return "", ""
}
