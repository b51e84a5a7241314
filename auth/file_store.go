package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/EpicVillage/Trello-Bot/internal/fsstore"
)

const authFileVersion = 1

type authStateFile struct {
	Version  int             `json:"version"`
	Users    []string        `json:"users"`
	Groups   []string        `json:"groups"`
	Requests []AccessRequest `json:"requests"`
}

// FileStore persists the authorization document as one JSON file.
// Every operation re-reads the file so edits made while the bot is
// running (including by hand) are picked up on the next check.
type FileStore struct {
	path     string
	lockPath string
}

func NewFileStore(path string, lockRoot string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing auth file path")
	}
	if strings.TrimSpace(lockRoot) == "" {
		return nil, fmt.Errorf("missing lock root")
	}
	lockPath, err := fsstore.BuildLockPath(lockRoot, "state.auth")
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, lockPath: lockPath}, nil
}

func (s *FileStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	var file authStateFile
	if _, err := fsstore.ReadJSON(s.path, &file); err != nil {
		return State{}, err
	}
	return State{
		Users:    file.Users,
		Groups:   file.Groups,
		Requests: file.Requests,
	}, nil
}

// Mutate applies fn to the freshly loaded state under the store lock
// and persists the result atomically.
func (s *FileStore) Mutate(ctx context.Context, fn func(*State) error) error {
	if fn == nil {
		return nil
	}
	return fsstore.WithLock(ctx, s.lockPath, func() error {
		state, err := s.Load(ctx)
		if err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		return fsstore.WriteJSONAtomic(s.path, authStateFile{
			Version:  authFileVersion,
			Users:    state.Users,
			Groups:   state.Groups,
			Requests: state.Requests,
		})
	})
}
