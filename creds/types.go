// Package creds maps a chat identity to the Trello credential pair it
// should use, falling back to the process-wide default, and caches one
// Trello client per distinct pair.
package creds

import "time"

// Record is a per-chat credential override. Absence of a record means
// the chat uses the default pair.
type Record struct {
	APIKey         string    `json:"api_key"`
	Token          string    `json:"token"`
	WorkspaceLabel string    `json:"workspace_label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsedAt     time.Time `json:"last_used_at"`
}

// Credential is the resolved pair handed to callers. Default reports
// whether it came from configuration rather than a per-chat record.
type Credential struct {
	APIKey         string
	Token          string
	WorkspaceLabel string
	Default        bool
}
