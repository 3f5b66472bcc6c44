package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"vantage/internal/types"
)

const historySchemaVersion = 1

type historyFile struct {
	Version  int                        `json:"version"`
	Sessions map[string]json.RawMessage `json:"sessions"`
}

// FileHistoryStore keeps every session's pagination record in one JSON
// document, written atomically.
type FileHistoryStore struct {
	path string
	mu   sync.Mutex
}

func NewFileHistoryStore(path string) *FileHistoryStore {
	return &FileHistoryStore{path: path}
}

func (s *FileHistoryStore) Load(ctx context.Context, sessionID string) (*types.HistoryEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		// Unreadable cache is a miss, never fatal.
		return nil, false, nil
	}
	raw, ok := file.Sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	entry, valid := decodeHistoryRecord(raw)
	if !valid {
		delete(file.Sessions, sessionID)
		_ = s.save(file)
		return nil, false, nil
	}
	return entry, true, nil
}

func (s *FileHistoryStore) Save(ctx context.Context, sessionID string, entry *types.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		return errors.New("session id is required")
	}
	if entry == nil || !entry.Valid() {
		return errors.New("history entry requires a seeded cursor ledger")
	}
	file, err := s.load()
	if err != nil {
		file = newHistoryFile()
	}
	raw, err := json.Marshal(stampHistoryEntry(entry))
	if err != nil {
		return err
	}
	file.Sessions[sessionID] = raw
	return s.save(file)
}

func (s *FileHistoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	delete(file.Sessions, sessionID)
	return s.save(file)
}

func (s *FileHistoryStore) load() (*historyFile, error) {
	file := newHistoryFile()
	if err := readJSON(s.path, file); err != nil {
		return nil, err
	}
	if file.Sessions == nil {
		file.Sessions = map[string]json.RawMessage{}
	}
	if file.Version == 0 {
		file.Version = historySchemaVersion
	}
	return file, nil
}

func (s *FileHistoryStore) save(file *historyFile) error {
	file.Version = historySchemaVersion
	return writeJSONAtomic(s.path, file)
}

func newHistoryFile() *historyFile {
	return &historyFile{
		Version:  historySchemaVersion,
		Sessions: map[string]json.RawMessage{},
	}
}

// decodeHistoryRecord accepts the current record shape and, as a fallback,
// the legacy bare array of cursor strings. Anything else is invalid and is
// treated as a miss by callers, which also drop the record.
func decodeHistoryRecord(raw json.RawMessage) (*types.HistoryEntry, bool) {
	var entry types.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err == nil && entry.Valid() {
		return types.CloneHistoryEntry(&entry), true
	}
	var legacy []string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		candidate := &types.HistoryEntry{CursorLedger: legacy}
		if candidate.Valid() {
			return types.CloneHistoryEntry(candidate), true
		}
	}
	return nil, false
}

func stampHistoryEntry(entry *types.HistoryEntry) *types.HistoryEntry {
	stamped := types.CloneHistoryEntry(entry)
	stamped.LastUpdateTime = time.Now().UnixMilli()
	return stamped
}
