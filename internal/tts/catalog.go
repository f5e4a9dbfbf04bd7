package tts

import (
	"fmt"
	"os"
	"strings"

	"github.com/lexiqai/voice-assistant/internal/jsonvalue"
)

// Language is one language a voice can speak
type Language struct {
	Name string
	Code string
}

// Character is a named voice persona
type Character struct {
	Name        string
	VoiceID     string
	Account     string // which ElevenLabs API key serves this voice: "1" or "2"
	Description string
	Languages   []Language
}

// LanguageCode resolves a language by display name (case-insensitive) or
// by code
func (c *Character) LanguageCode(language string) (string, bool) {
	language = strings.TrimSpace(language)
	for _, l := range c.Languages {
		if strings.EqualFold(l.Name, language) || strings.EqualFold(l.Code, language) {
			return l.Code, true
		}
	}
	return "", false
}

// LanguageNames lists the display names in catalog order
func (c *Character) LanguageNames() []string {
	names := make([]string, len(c.Languages))
	for i, l := range c.Languages {
		names[i] = l.Name
	}
	return names
}

// CharacterInfo is the public view of a character
type CharacterInfo struct {
	Description string   `json:"description"`
	Languages   []string `json:"languages"`
}

// Catalog is an ordered set of characters
type Catalog struct {
	order  []string
	byName map[string]*Character
}

func newCatalog(characters []*Character) *Catalog {
	c := &Catalog{byName: make(map[string]*Character, len(characters))}
	for _, ch := range characters {
		c.order = append(c.order, ch.Name)
		c.byName[ch.Name] = ch
	}
	return c
}

// Get finds a character by exact name, falling back to a case-insensitive
// match
func (c *Catalog) Get(name string) (*Character, bool) {
	if ch, ok := c.byName[name]; ok {
		return ch, true
	}
	for _, n := range c.order {
		if strings.EqualFold(n, name) {
			return c.byName[n], true
		}
	}
	return nil, false
}

// Names lists character names in catalog order
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Info returns the description and language names of every character
func (c *Catalog) Info() map[string]CharacterInfo {
	info := make(map[string]CharacterInfo, len(c.order))
	for _, name := range c.order {
		ch := c.byName[name]
		info[name] = CharacterInfo{Description: ch.Description, Languages: ch.LanguageNames()}
	}
	return info
}

func langs(pairs ...string) []Language {
	out := make([]Language, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Language{Name: pairs[i], Code: pairs[i+1]})
	}
	return out
}

// DefaultCatalog returns the built-in voices
func DefaultCatalog() *Catalog {
	return newCatalog([]*Character{
		{
			Name:        "Monika",
			VoiceID:     "1qEiC6qsybMkmnNdVMbK",
			Account:     "1",
			Description: "Versatile multilingual female voice with natural intonation",
			Languages: langs("English", "en", "Hindi", "hi", "Arabic", "ar", "Bulgarian", "bg",
				"Czech", "cs", "Portuguese", "pt", "Finnish", "fi", "Indonesian", "id"),
		},
		{
			Name:        "Meera",
			VoiceID:     "gCr8TeSJgJaeaIoV4RWH",
			Account:     "1",
			Description: "Expressive female voice with diverse language capabilities",
			Languages: langs("English", "en", "Tamil", "ta", "Spanish", "es", "Polish", "pl",
				"German", "de", "Italian", "it", "French", "fr", "Arabic", "ar"),
		},
		{
			Name:        "Danielle",
			VoiceID:     "FVQMzxJGPUBtfz1Azdoy",
			Account:     "1",
			Description: "Clear and professional female voice with European language support",
			Languages: langs("English", "en", "Bulgarian", "bg", "Czech", "cs", "German", "de",
				"Spanish", "es", "Hindi", "hi", "Italian", "it", "French", "fr", "Arabic", "ar"),
		},
		{
			Name:        "Adam",
			VoiceID:     "NFG5qt843uXKj4pFvR7C",
			Account:     "2",
			Description: "A middle aged 'Brit' with a velvety laid back, late night talk show host timbre",
			Languages: langs("English", "en", "Hindi", "hi", "Portuguese", "pt", "Greek", "el",
				"Polish", "pl", "French", "fr", "Indonesian", "id"),
		},
		{
			Name:        "Neeraj",
			VoiceID:     "zgqefOY5FPQ3bB7OZTVR",
			Account:     "2",
			Description: "Veteran Indian actor voice, great for narrative work and documentaries",
			Languages: langs("Hindi", "hi", "English", "en", "German", "de", "Spanish", "es",
				"Greek", "el", "Russian", "ru"),
		},
		{
			Name:        "Mark",
			VoiceID:     "UgBBYS2sOqTuMpoF3BR0",
			Account:     "2",
			Description: "Casual, young-adult male voice speaking naturally, perfect for conversational AI",
			Languages: langs("English", "en", "German", "de", "Spanish", "es", "Polish", "pl",
				"Portuguese", "pt", "Filipino", "tl", "Italian", "it", "Hindi", "hi", "Czech", "cs"),
		},
	})
}

// LoadCatalog reads a catalog from a JSON file shaped like
//
//	{"Name": {"id": "...", "api": "1", "description": "...", "languages": {"English": "en"}}}
//
// Object order is kept for both characters and languages. An empty path
// returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading characters file: %w", err)
	}
	doc, err := jsonvalue.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing characters file: %w", err)
	}
	return catalogFromJSON(doc)
}

func catalogFromJSON(doc *jsonvalue.Value) (*Catalog, error) {
	if doc.Kind() != jsonvalue.Object || doc.Len() == 0 {
		return nil, fmt.Errorf("characters file must be a non-empty object")
	}

	var characters []*Character
	for _, m := range doc.Members() {
		ch := &Character{Name: m.Key, Description: m.Value.Get("description").Text()}

		var ok bool
		if ch.VoiceID, ok = m.Value.Get("id").Str(); !ok || ch.VoiceID == "" {
			return nil, fmt.Errorf("character %q: missing voice id", m.Key)
		}
		ch.Account = m.Value.Get("api").Text()
		if ch.Account != "1" && ch.Account != "2" {
			return nil, fmt.Errorf("character %q: api must be \"1\" or \"2\"", m.Key)
		}

		for _, l := range m.Value.Get("languages").Members() {
			code, ok := l.Value.Str()
			if !ok || code == "" {
				return nil, fmt.Errorf("character %q: language %q has no code", m.Key, l.Key)
			}
			ch.Languages = append(ch.Languages, Language{Name: l.Key, Code: strings.ToLower(code)})
		}
		if len(ch.Languages) == 0 {
			return nil, fmt.Errorf("character %q: no languages", m.Key)
		}
		characters = append(characters, ch)
	}
	return newCatalog(characters), nil
}
