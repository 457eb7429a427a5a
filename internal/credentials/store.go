// Package credentials holds the single API credential used for all remote
// model calls. The key is sourced, in priority order, from a locally
// persisted file, the GEMINI_API_KEY environment variable, or a value set at
// runtime through the API (which is then persisted).
package credentials

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Source describes where the active credential came from.
type Source string

const (
	SourceNone      Source = "none"
	SourcePersisted Source = "persisted"
	SourceEnv       Source = "env"
	SourceUser      Source = "user"
)

type Store struct {
	mu     sync.RWMutex
	path   string
	key    string
	source Source
}

// Load creates a store backed by the file at path, resolving the initial
// credential. A missing or unreadable file is not an error; the store simply
// starts empty or falls back to the environment.
func Load(path string) *Store {
	s := &Store{path: path, source: SourceNone}

	if data, err := os.ReadFile(path); err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			s.key = key
			s.source = SourcePersisted
			return s
		}
	}

	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		s.key = key
		s.source = SourceEnv
	}

	return s
}

// Get returns the active credential, reporting false when none is configured.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.key != ""
}

// Source reports where the active credential came from.
func (s *Store) Source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Set stores a user-entered credential and persists it for later sessions.
func (s *Store) Set(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("credential cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	s.key = key
	s.source = SourceUser
	return nil
}

// Clear forgets the credential and removes the persisted copy.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove persisted credential: %w", err)
	}
	s.key = ""
	s.source = SourceNone
	return nil
}
