package tts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	names := c.Names()
	want := []string{"Monika", "Meera", "Danielle", "Adam", "Neeraj", "Mark"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("Names = %v, want %v", names, want)
	}

	adam, ok := c.Get("Adam")
	if !ok {
		t.Fatal("Adam missing")
	}
	if adam.VoiceID != "NFG5qt843uXKj4pFvR7C" || adam.Account != "2" {
		t.Errorf("unexpected Adam: %+v", adam)
	}
	if code, ok := adam.LanguageCode("greek"); !ok || code != "el" {
		t.Errorf("LanguageCode(greek) = %q, %v", code, ok)
	}
	if code, ok := adam.LanguageCode("EL"); !ok || code != "el" {
		t.Errorf("LanguageCode(EL) = %q, %v", code, ok)
	}
	if _, ok := adam.LanguageCode("Tamil"); ok {
		t.Error("Adam should not speak Tamil")
	}

	neeraj, _ := c.Get("neeraj")
	if neeraj == nil || neeraj.LanguageNames()[0] != "Hindi" {
		t.Error("case-insensitive lookup or language order broken")
	}

	if _, ok := c.Get("Nobody"); ok {
		t.Error("unknown character resolved")
	}
}

func TestCatalogInfo(t *testing.T) {
	info := DefaultCatalog().Info()
	if len(info) != 6 {
		t.Fatalf("len = %d, want 6", len(info))
	}
	mark := info["Mark"]
	if len(mark.Languages) != 9 || mark.Languages[5] != "Filipino" {
		t.Errorf("unexpected Mark languages %v", mark.Languages)
	}
	if !strings.HasPrefix(mark.Description, "Casual") {
		t.Errorf("unexpected description %q", mark.Description)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.json")
	doc := `{
		"Zed": {"id": "voice-z", "api": "2", "description": "Test voice", "languages": {"French": "FR", "English": "en"}},
		"Amy": {"id": "voice-a", "api": "1", "description": "Other", "languages": {"Tamil": "ta"}}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if strings.Join(c.Names(), ",") != "Zed,Amy" {
		t.Errorf("order not kept: %v", c.Names())
	}
	zed, _ := c.Get("Zed")
	if zed.Languages[0] != (Language{Name: "French", Code: "fr"}) {
		t.Errorf("unexpected first language %+v", zed.Languages[0])
	}
}

func TestLoadCatalogEmptyPathUsesDefault(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(c.Names()) != 6 {
		t.Errorf("expected built-in catalog")
	}
}

func TestLoadCatalogInvalid(t *testing.T) {
	tests := map[string]string{
		"not an object":   `[]`,
		"empty":           `{}`,
		"missing id":      `{"A": {"api": "1", "languages": {"English": "en"}}}`,
		"bad account":     `{"A": {"id": "v", "api": "3", "languages": {"English": "en"}}}`,
		"no languages":    `{"A": {"id": "v", "api": "1", "languages": {}}}`,
		"non-string code": `{"A": {"id": "v", "api": "1", "languages": {"English": 1}}}`,
		"malformed":       `{"A":`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.json")
			os.WriteFile(path, []byte(doc), 0o644)
			if _, err := LoadCatalog(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
