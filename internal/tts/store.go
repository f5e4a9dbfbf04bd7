package tts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/observability"
)

const audioExt = ".mp3"

// ErrInvalidName is returned for artifact names that do not resolve to a
// file inside the store
var ErrInvalidName = errors.New("invalid audio file name")

// ArtifactStore owns the directory synthesized audio is written to
type ArtifactStore struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// NewArtifactStore creates dir if needed
func NewArtifactStore(dir string, logger zerolog.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio output directory: %w", err)
	}
	return &ArtifactStore{
		dir:    dir,
		now:    time.Now,
		logger: logger.With().Str("component", "artifact_store").Logger(),
	}, nil
}

// Dir returns the output directory
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Name picks the file name for a new artifact. requested is reduced to its
// base name and always ends in .mp3; when empty a unique
// {character}_{code}_{unix}_{suffix}.mp3 name is generated.
func (s *ArtifactStore) Name(character, code, requested string) string {
	name := filepath.Base(strings.TrimSpace(requested))
	if requested == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		return fmt.Sprintf("%s_%s_%d_%s%s", character, code, s.now().Unix(), suffix, audioExt)
	}
	if ext := filepath.Ext(name); !strings.EqualFold(ext, audioExt) {
		name = strings.TrimSuffix(name, ext) + audioExt
	}
	return name
}

// Path resolves a client-supplied name to a path inside the store
func (s *ArtifactStore) Path(name string) (string, error) {
	base := filepath.Base(name)
	if name == "" || base != name || base == "." || base == ".." {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, base), nil
}

// Write streams r into name atomically: readers never see a partial file
func (s *ArtifactStore) Write(name string, r io.Reader) (string, int64, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp artifact: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", n, fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", n, fmt.Errorf("publishing artifact: %w", err)
	}
	return path, n, nil
}

// Sweep removes *.mp3 files whose modification time is older than maxAge
func (s *ArtifactStore) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("listing audio output directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != audioExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", e.Name()).Msg("Failed to remove old audio file")
				continue
			}
			removed++
		}
	}

	observability.RecordSweep("audio", removed)
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old audio files removed")
	}
	return removed, nil
}
