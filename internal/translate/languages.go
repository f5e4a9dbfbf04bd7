package translate

import "strings"

// languageNames maps ISO 639-1 codes to the display names used by the
// character catalog and the HTTP API
var languageNames = map[string]string{
	"af": "Afrikaans",
	"ar": "Arabic",
	"bg": "Bulgarian",
	"bn": "Bengali",
	"cs": "Czech",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"fa": "Persian",
	"fi": "Finnish",
	"fr": "French",
	"gu": "Gujarati",
	"he": "Hebrew",
	"hi": "Hindi",
	"hr": "Croatian",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"kn": "Kannada",
	"ko": "Korean",
	"ml": "Malayalam",
	"mr": "Marathi",
	"ms": "Malay",
	"nl": "Dutch",
	"no": "Norwegian",
	"pa": "Punjabi",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"sk": "Slovak",
	"sv": "Swedish",
	"sw": "Swahili",
	"ta": "Tamil",
	"te": "Telugu",
	"th": "Thai",
	"tl": "Filipino",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"ur": "Urdu",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// nameAliases accepts alternative names for a few languages
var nameAliases = map[string]string{
	"tagalog":   "tl",
	"farsi":     "fa",
	"mandarin":  "zh",
	"castilian": "es",
}

var codesByName = func() map[string]string {
	m := make(map[string]string, len(languageNames)+len(nameAliases))
	for code, name := range languageNames {
		m[strings.ToLower(name)] = code
	}
	for alias, code := range nameAliases {
		m[alias] = code
	}
	return m
}()

// Code canonicalises a language name ("Spanish"), code ("ES") or locale
// ("es-MX", "pt_BR") to its ISO 639-1 code. Unrecognised input reports false.
func Code(language string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(language))
	if l == "" {
		return "", false
	}
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	if _, ok := languageNames[l]; ok {
		return l, true
	}
	if code, ok := codesByName[l]; ok {
		return code, true
	}
	return "", false
}

// Name returns the display name for a language in any form Code accepts
func Name(language string) (string, bool) {
	code, ok := Code(language)
	if !ok {
		return "", false
	}
	return languageNames[code], true
}

// PivotCode resolves the configured pivot language to its code, defaulting to
// English when the setting is empty or unrecognised
func PivotCode(language string) string {
	if code, ok := Code(language); ok {
		return code
	}
	return "en"
}
