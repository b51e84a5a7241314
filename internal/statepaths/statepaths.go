// Package statepaths resolves where on disk the bot keeps its state
// documents, driven by the viper "state_dir" key.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	AuthFilename      = "auth.json"
	CredsFilename     = "credentials.json"
	ChatPrefsFilename = "chat_prefs.json"

	lockDirName = ".fslocks"
)

// StateDir returns the configured state directory, defaulting to
// ~/.trello-bot (falling back to a relative dir when the home
// directory cannot be determined).
func StateDir() string {
	dir := strings.TrimSpace(viper.GetString("state_dir"))
	if dir != "" {
		return expandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".trello-bot"
	}
	return filepath.Join(home, ".trello-bot")
}

func AuthPath() string      { return filepath.Join(StateDir(), AuthFilename) }
func CredsPath() string     { return filepath.Join(StateDir(), CredsFilename) }
func ChatPrefsPath() string { return filepath.Join(StateDir(), ChatPrefsFilename) }

// LockRoot is the directory holding fsstore lock files for all state
// documents.
func LockRoot() string { return filepath.Join(StateDir(), lockDirName) }

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}
