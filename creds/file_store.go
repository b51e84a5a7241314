package creds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EpicVillage/Trello-Bot/internal/fsstore"
)

const credsFileVersion = 1

type credsStateFile struct {
	Version int               `json:"version"`
	Chats   map[string]Record `json:"chats"`
}

// FileStore holds all per-chat credential records in one JSON
// document keyed by chat identity.
type FileStore struct {
	path     string
	lockPath string
}

func NewFileStore(path string, lockRoot string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing credentials file path")
	}
	if strings.TrimSpace(lockRoot) == "" {
		return nil, fmt.Errorf("missing lock root")
	}
	lockPath, err := fsstore.BuildLockPath(lockRoot, "state.credentials")
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, lockPath: lockPath}, nil
}

func (s *FileStore) load() (credsStateFile, error) {
	file := credsStateFile{Version: credsFileVersion}
	if _, err := fsstore.ReadJSON(s.path, &file); err != nil {
		return file, err
	}
	if file.Chats == nil {
		file.Chats = make(map[string]Record)
	}
	return file, nil
}

// Get returns the record for a chat and refreshes its LastUsedAt
// stamp. The refresh is deliberate: reads are how "is this workspace
// still in use" is answered later.
func (s *FileStore) Get(ctx context.Context, chatID string) (Record, bool, error) {
	chatID = strings.TrimSpace(chatID)
	var rec Record
	found := false
	err := fsstore.WithLock(ctx, s.lockPath, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		rec, found = file.Chats[chatID]
		if !found {
			return nil
		}
		rec.LastUsedAt = time.Now().UTC()
		file.Chats[chatID] = rec
		return fsstore.WriteJSONAtomic(s.path, file)
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

func (s *FileStore) Put(ctx context.Context, chatID string, rec Record) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("missing chat identity")
	}
	return fsstore.WithLock(ctx, s.lockPath, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.LastUsedAt = now
		file.Chats[chatID] = rec
		return fsstore.WriteJSONAtomic(s.path, file)
	})
}

// Delete removes a chat's record. Returns false when no record
// existed.
func (s *FileStore) Delete(ctx context.Context, chatID string) (bool, error) {
	chatID = strings.TrimSpace(chatID)
	removed := false
	err := fsstore.WithLock(ctx, s.lockPath, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := file.Chats[chatID]; !ok {
			return nil
		}
		delete(file.Chats, chatID)
		removed = true
		return fsstore.WriteJSONAtomic(s.path, file)
	})
	return removed, err
}
