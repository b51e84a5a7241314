// Package prefs stores per-chat board/list selection and usage
// counters. The selection lives in the namespace of whatever Trello
// account the chat's credential resolves to, so it is cleared whenever
// that credential changes.
package prefs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EpicVillage/Trello-Bot/internal/fsstore"
)

const prefsFileVersion = 1

type Config struct {
	BoardID       string    `json:"board_id,omitempty"`
	DefaultListID string    `json:"default_list_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type Stats struct {
	IdeasCreated   int `json:"ideas_created"`
	CardsCompleted int `json:"cards_completed"`
}

type chatEntry struct {
	Config Config `json:"config"`
	Stats  Stats  `json:"stats"`
}

type prefsStateFile struct {
	Version int                  `json:"version"`
	Chats   map[string]chatEntry `json:"chats"`
}

type Store struct {
	path     string
	lockPath string
}

func NewStore(path string, lockRoot string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing chat prefs file path")
	}
	if strings.TrimSpace(lockRoot) == "" {
		return nil, fmt.Errorf("missing lock root")
	}
	lockPath, err := fsstore.BuildLockPath(lockRoot, "state.chat_prefs")
	if err != nil {
		return nil, err
	}
	return &Store{path: path, lockPath: lockPath}, nil
}

func (s *Store) load() (prefsStateFile, error) {
	file := prefsStateFile{Version: prefsFileVersion}
	if _, err := fsstore.ReadJSON(s.path, &file); err != nil {
		return file, err
	}
	if file.Chats == nil {
		file.Chats = make(map[string]chatEntry)
	}
	return file, nil
}

func (s *Store) mutate(ctx context.Context, chatID string, fn func(*chatEntry)) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("missing chat identity")
	}
	return fsstore.WithLock(ctx, s.lockPath, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		entry := file.Chats[chatID]
		fn(&entry)
		file.Chats[chatID] = entry
		return fsstore.WriteJSONAtomic(s.path, file)
	})
}

func (s *Store) GetConfig(ctx context.Context, chatID string) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}
	file, err := s.load()
	if err != nil {
		return Config{}, err
	}
	return file.Chats[strings.TrimSpace(chatID)].Config, nil
}

// SetBoard selects a board and drops the default list, which belonged
// to the previous board.
func (s *Store) SetBoard(ctx context.Context, chatID, boardID string) error {
	return s.mutate(ctx, chatID, func(e *chatEntry) {
		e.Config.BoardID = strings.TrimSpace(boardID)
		e.Config.DefaultListID = ""
		e.Config.UpdatedAt = time.Now().UTC()
	})
}

func (s *Store) SetDefaultList(ctx context.Context, chatID, listID string) error {
	return s.mutate(ctx, chatID, func(e *chatEntry) {
		e.Config.DefaultListID = strings.TrimSpace(listID)
		e.Config.UpdatedAt = time.Now().UTC()
	})
}

// ClearConfig wipes the chat's board/list selection, keeping stats.
func (s *Store) ClearConfig(ctx context.Context, chatID string) error {
	return s.mutate(ctx, chatID, func(e *chatEntry) {
		e.Config = Config{UpdatedAt: time.Now().UTC()}
	})
}

func (s *Store) GetStats(ctx context.Context, chatID string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	file, err := s.load()
	if err != nil {
		return Stats{}, err
	}
	return file.Chats[strings.TrimSpace(chatID)].Stats, nil
}

func (s *Store) CountIdeaCreated(ctx context.Context, chatID string) error {
	return s.mutate(ctx, chatID, func(e *chatEntry) { e.Stats.IdeasCreated++ })
}

func (s *Store) CountCardCompleted(ctx context.Context, chatID string) error {
	return s.mutate(ctx, chatID, func(e *chatEntry) { e.Stats.CardsCompleted++ })
}
