package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store persists finished sessions to a JSON file
type Store struct {
	filePath    string
	mu          sync.RWMutex
	history     *History
	maxSessions int
}

// NewStore creates a store backed by filePath, keeping at most maxSessions.
func NewStore(filePath string, maxSessions int) *Store {
	return &Store{
		filePath:    filePath,
		history:     &History{Sessions: []Record{}},
		maxSessions: maxSessions,
	}
}

// Load reads history from disk. A missing file starts an empty history; a
// corrupted one is moved aside to <path>.backup.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		s.history = &History{Sessions: []Record{}}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read history file")
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		backupPath := s.filePath + ".backup"
		log.Warn().Err(err).Str("backup", backupPath).Msg("History file is corrupted, starting fresh")
		if rerr := os.Rename(s.filePath, backupPath); rerr != nil {
			log.Warn().Err(rerr).Msg("Could not back up corrupted history")
		}
		h = History{}
	}
	if h.Sessions == nil {
		h.Sessions = []Record{}
	}
	s.history = &h
	return nil
}

// Put inserts or replaces the record with the same thread id and saves.
func (s *Store) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.history.Sessions {
		if s.history.Sessions[i].ThreadID == rec.ThreadID {
			s.history.Sessions[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.history.Sessions = append(s.history.Sessions, rec)
	}

	return s.saveUnlocked()
}

// Get returns the stored record for threadID
func (s *Store) Get(threadID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.history.Sessions {
		if r.ThreadID == threadID {
			return r, true
		}
	}
	return Record{}, false
}

// Sessions returns every stored record, oldest first
func (s *Store) Sessions() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.history.Sessions...)
}

// saveUnlocked must be called with the lock held
func (s *Store) saveUnlocked() error {
	if len(s.history.Sessions) > s.maxSessions {
		s.history.Sessions = s.history.Sessions[len(s.history.Sessions)-s.maxSessions:]
	}

	data, err := json.MarshalIndent(s.history, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal history")
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}

	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}

	if err := os.Rename(tempPath, s.filePath); err != nil {
		return errors.Wrap(err, "failed to rename temp file")
	}

	return nil
}
