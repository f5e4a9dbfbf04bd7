package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-assistant/internal/observability"
)

// ErrNotFound is returned for tokens that were never issued or have expired
var ErrNotFound = errors.New("session not found")

// Role identifies who authored a turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type entry struct {
	turns        []Turn
	language     string
	lastActivity time.Time
}

// Store keeps conversations in memory, keyed by an opaque token. History is
// lost on restart.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	persona  string
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewStore creates a store whose sessions start with the persona as their
// system turn and expire after timeout of inactivity
func NewStore(persona string, timeout time.Duration, logger zerolog.Logger) *Store {
	if persona == "" {
		persona = DefaultPersona
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Store{
		sessions: make(map[string]*entry),
		persona:  persona,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger.With().Str("component", "session_store").Logger(),
	}
}

// Create starts a session seeded with the persona and returns its token
func (s *Store) Create() string {
	token := uuid.New().String()

	s.mu.Lock()
	s.sessions[token] = &entry{
		turns:        []Turn{{Role: RoleSystem, Content: s.persona}},
		lastActivity: s.now(),
	}
	n := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(n)
	s.logger.Debug().Str("session_id", token).Msg("Session created")
	return token
}

// Exists reports whether token names a live session
func (s *Store) Exists(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	return ok
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Append adds a turn to the end of the conversation
func (s *Store) Append(token string, role Role, content string) error {
	return s.update(token, func(e *entry) {
		e.turns = append(e.turns, Turn{Role: role, Content: content})
	})
}

// History returns a copy of the conversation, oldest turn first
func (s *Store) History(token string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	turns := make([]Turn, len(e.turns))
	copy(turns, e.turns)
	return turns, nil
}

// SetLanguage records the language the user last spoke
func (s *Store) SetLanguage(token, code string) error {
	return s.update(token, func(e *entry) {
		e.language = code
	})
}

// Language returns the recorded language, "" when none was set
func (s *Store) Language(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", ErrNotFound
	}
	return e.language, nil
}

// Trim keeps the system turn plus the most recent keepPairs user/assistant
// pairs once the conversation grows past that
func (s *Store) Trim(token string, keepPairs int) error {
	if keepPairs < 0 {
		keepPairs = 0
	}
	return s.update(token, func(e *entry) {
		limit := 2*keepPairs + 1
		if len(e.turns) <= limit {
			return
		}
		trimmed := make([]Turn, 0, limit)
		trimmed = append(trimmed, e.turns[0])
		trimmed = append(trimmed, e.turns[len(e.turns)-2*keepPairs:]...)
		e.turns = trimmed
	})
}

// SweepExpired drops sessions idle for longer than the timeout and returns
// how many were removed
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	cutoff := s.now().Add(-s.timeout)
	removed := 0
	for token, e := range s.sessions {
		if e.lastActivity.Before(cutoff) {
			delete(s.sessions, token)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(n)
	observability.RecordSweep("sessions", removed)
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Int("remaining", n).Msg("Expired sessions removed")
	}
	return removed
}

func (s *Store) update(token string, fn func(e *entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return ErrNotFound
	}
	fn(e)
	e.lastActivity = s.now()
	return nil
}
