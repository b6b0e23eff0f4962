// Package resume remembers the active workflow id per endpoint so relaunching
// the client reattaches to the same workflow.
package resume

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultFile is the store file name inside the user data directory.
const DefaultFile = "sessions.json"

// Entry is one remembered workflow.
type Entry struct {
	Endpoint   string    `json:"endpoint"`
	WorkflowID string    `json:"workflow_id"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is a JSON file of entries keyed by endpoint. An empty path disables it.
type Store struct {
	path string
	now  func() time.Time
}

func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) enabled() bool {
	return s != nil && strings.TrimSpace(s.path) != ""
}

// Load returns the remembered workflow for endpoint, if any.
func (s *Store) Load(endpoint string) (Entry, bool, error) {
	if !s.enabled() {
		return Entry{}, false, nil
	}
	entries, err := loadEntries(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	key := normalizeEndpoint(endpoint)
	for _, entry := range entries {
		if normalizeEndpoint(entry.Endpoint) == key && entry.WorkflowID != "" {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

// Remember records workflowID as the active workflow for endpoint. The start
// time is kept when the same id is remembered again.
func (s *Store) Remember(endpoint, workflowID string) error {
	if !s.enabled() || strings.TrimSpace(workflowID) == "" {
		return nil
	}
	return s.update(func(entries []Entry) []Entry {
		key := normalizeEndpoint(endpoint)
		now := s.now().UTC()
		for i := range entries {
			if normalizeEndpoint(entries[i].Endpoint) != key {
				continue
			}
			if entries[i].WorkflowID != workflowID {
				entries[i].WorkflowID = workflowID
				entries[i].StartedAt = now
			}
			entries[i].UpdatedAt = now
			return entries
		}
		return append(entries, Entry{
			Endpoint:   key,
			WorkflowID: workflowID,
			StartedAt:  now,
			UpdatedAt:  now,
		})
	})
}

// Forget drops the entry for endpoint.
func (s *Store) Forget(endpoint string) error {
	if !s.enabled() {
		return nil
	}
	return s.update(func(entries []Entry) []Entry {
		key := normalizeEndpoint(endpoint)
		kept := entries[:0]
		for _, entry := range entries {
			if normalizeEndpoint(entry.Endpoint) != key {
				kept = append(kept, entry)
			}
		}
		return kept
	})
}

func (s *Store) update(mutate func([]Entry) []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	entries, err := loadEntries(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		entries = nil
	}
	return writeEntries(s.path, mutate(entries))
}

func writeEntries(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func normalizeEndpoint(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/")
}
