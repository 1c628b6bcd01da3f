// Package checkpoint records which pipeline scopes have completed, one JSON
// marker file per scope under <dir>/checkpoints. The markers are the sole
// source of "should I redo this work" truth; the step runner layers artifact
// verification on top because a later step can delete an output the marker
// assumed exists.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store persists scope completion markers. Safe for concurrent use: writes
// are serialized so two workers cannot race a partial marker into place.
type Store struct {
	mu  sync.Mutex
	dir string
}

type marker struct {
	Scope       string    `json:"scope"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewStore creates (if needed) the checkpoint directory and returns a store
// over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// scopeEncoder rewrites scope names into filesystem-safe marker names. Every
// underscore in the output starts a two-character token ("__" for a literal
// underscore, "_-" for ':', "_s" for '/', "_w" for a space), so the encoding
// is injective: sample ids containing separators can never make two distinct
// scopes share a marker file.
var scopeEncoder = strings.NewReplacer("_", "__", ":", "_-", "/", "_s", " ", "_w")

// scopePath maps a scope name like "align:s1:gene" to a marker filename.
func (s *Store) scopePath(scope string) string {
	return filepath.Join(s.dir, "checkpoint_"+scopeEncoder.Replace(scope)+".json")
}

// IsDone reports whether scope has a completion marker.
func (s *Store) IsDone(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := os.Stat(s.scopePath(scope))
	return err == nil && !info.IsDir()
}

// MarkDone writes the completion marker for scope. The marker is written to a
// temp file and renamed so a crash mid-write never leaves a readable marker.
func (s *Store) MarkDone(scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(marker{Scope: scope, CompletedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	path := s.scopePath(scope)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint for %s: %w", scope, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing checkpoint for %s: %w", scope, err)
	}
	return nil
}

// Clear removes the marker for scope. Clearing an absent marker is not an
// error.
func (s *Store) Clear(scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.scopePath(scope)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing checkpoint for %s: %w", scope, err)
	}
	return nil
}

// Reset discards every marker in the store. Used once at run start when the
// operator asks for a fresh run instead of a resume.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing checkpoint directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "checkpoint_") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}
