package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"vantage/internal/types"
)

var bucketSessionHistory = []byte("session_history")

type bboltRepository struct {
	db      *bolt.DB
	history HistoryStore
}

func NewBboltRepository(path string) (Repository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initBboltSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltRepository{
		db:      db,
		history: &bboltHistoryStore{db: db},
	}, nil
}

func (r *bboltRepository) History() HistoryStore {
	return r.history
}

func (r *bboltRepository) Backend() string {
	return RepositoryBackendBbolt
}

func (r *bboltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func initBboltSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessionHistory)
		return err
	})
}

type bboltHistoryStore struct {
	db *bolt.DB
}

func (s *bboltHistoryStore) Load(ctx context.Context, sessionID string) (*types.HistoryEntry, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionHistory)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(sessionID)); len(v) > 0 {
			raw = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, nil
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	entry, valid := decodeHistoryRecord(raw)
	if !valid {
		_ = s.Delete(ctx, sessionID)
		return nil, false, nil
	}
	return entry, true, nil
}

func (s *bboltHistoryStore) Save(ctx context.Context, sessionID string, entry *types.HistoryEntry) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if entry == nil || !entry.Valid() {
		return errors.New("history entry requires a seeded cursor ledger")
	}
	raw, err := json.Marshal(stampHistoryEntry(entry))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionHistory)
		if b == nil {
			return errors.New("session history bucket missing")
		}
		return b.Put([]byte(sessionID), raw)
	})
}

func (s *bboltHistoryStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionHistory)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(sessionID))
	})
}
