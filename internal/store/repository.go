package store

import (
	"context"
	"errors"
	"strings"

	"vantage/internal/types"
)

const (
	RepositoryBackendFile  = "file"
	RepositoryBackendBbolt = "bbolt"
)

// HistoryStore persists the per-session pagination record. Corrupt or
// missing records read as a miss; the feed engine rebuilds from scratch.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) (*types.HistoryEntry, bool, error)
	Save(ctx context.Context, sessionID string, entry *types.HistoryEntry) error
	Delete(ctx context.Context, sessionID string) error
}

type Repository interface {
	History() HistoryStore
	Backend() string
	Close() error
}

type RepositoryPaths struct {
	HistoryFilePath string
	DBPath          string
}

type fileRepository struct {
	history HistoryStore
}

func NewFileRepository(paths RepositoryPaths) Repository {
	return &fileRepository{
		history: NewFileHistoryStore(paths.HistoryFilePath),
	}
}

func (r *fileRepository) History() HistoryStore {
	return r.history
}

func (r *fileRepository) Backend() string {
	return RepositoryBackendFile
}

func (r *fileRepository) Close() error {
	return nil
}

func OpenRepository(paths RepositoryPaths, backend string) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", RepositoryBackendBbolt:
		if strings.TrimSpace(paths.DBPath) == "" {
			return nil, errors.New("db path is required for bbolt repository")
		}
		return NewBboltRepository(paths.DBPath)
	case RepositoryBackendFile:
		if strings.TrimSpace(paths.HistoryFilePath) == "" {
			return nil, errors.New("history file path is required for file repository")
		}
		return NewFileRepository(paths), nil
	default:
		return nil, errors.New("unsupported repository backend: " + backend)
	}
}
