// Package auth decides which Telegram identities may use the bot and
// tracks pending access requests. Admin identities are supplied at
// boot, are always authorized, and can never be unauthorized.
package auth

import "time"

type RequestKind string

const (
	KindUser  RequestKind = "user"
	KindGroup RequestKind = "group"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// AccessRequest records one "let me in" request. At most one pending
// request may exist per (requester, chat) pair; approved/rejected are
// terminal.
type AccessRequest struct {
	ID          string        `json:"id"`
	RequesterID string        `json:"requester_id"`
	DisplayName string        `json:"display_name,omitempty"`
	ChatID      string        `json:"chat_id"`
	ChatTitle   string        `json:"chat_title,omitempty"`
	Kind        RequestKind   `json:"kind"`
	Status      RequestStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// State is the persisted authorization document. Admins are not part
// of it: they come from configuration and are immutable at runtime.
type State struct {
	Users    []string        `json:"users"`
	Groups   []string        `json:"groups"`
	Requests []AccessRequest `json:"requests"`
}

func (s *State) hasUser(id string) bool  { return contains(s.Users, id) }
func (s *State) hasGroup(id string) bool { return contains(s.Groups, id) }

func contains(items []string, id string) bool {
	for _, item := range items {
		if item == id {
			return true
		}
	}
	return false
}

func remove(items []string, id string) []string {
	out := items[:0]
	for _, item := range items {
		if item != id {
			out = append(out, item)
		}
	}
	return out
}
