// Package session holds in-flight multi-step dialogs. Each chat-scoped
// key owns at most one session; starting a new one silently replaces
// whatever was there.
package session

import (
	"strings"
	"sync"
	"time"
)

type Kind string

const (
	KindIdeaCapture    Kind = "idea-capture"
	KindWorkspaceSetup Kind = "workspace-setup"
)

type Step string

const (
	StepWaitingForIdea        Step = "waiting_for_idea"
	StepWaitingForList        Step = "waiting_for_list"
	StepWaitingForCredentials Step = "waiting_for_credentials"
)

// Session is one in-flight dialog. Payload accumulates free-form
// fields across steps (idea title, rendered description, ...).
type Session struct {
	Key         string
	Kind        Kind
	Step        Step
	OwnerChatID string
	Payload     map[string]string
	StartedAt   time.Time
}

// KeyFor derives the session key: the group identity in multi-user
// chats (the dialog belongs to the room), the sender identity in
// private chats.
func KeyFor(senderID, chatID string, isGroup bool) string {
	if isGroup {
		return strings.TrimSpace(chatID)
	}
	return strings.TrimSpace(senderID)
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func initialStep(kind Kind) Step {
	if kind == KindWorkspaceSetup {
		return StepWaitingForCredentials
	}
	return StepWaitingForIdea
}

// Start creates a session for key, unconditionally overwriting any
// existing one, and returns a snapshot of it.
func (s *Store) Start(key string, kind Kind, ownerChatID string) Session {
	sess := &Session{
		Key:         key,
		Kind:        kind,
		Step:        initialStep(kind),
		OwnerChatID: ownerChatID,
		Payload:     make(map[string]string),
		StartedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.sessions[key] = sess
	s.mu.Unlock()
	return snapshot(sess)
}

// Get returns a snapshot of the session for key, if any.
func (s *Store) Get(key string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	return snapshot(sess), true
}

// Update mutates the session under the store lock. Returns false when
// no session exists for key.
func (s *Store) Update(key string, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return false
	}
	fn(sess)
	return true
}

// Delete removes the session for key. Deleting an absent key is a
// no-op returning false.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return false
	}
	delete(s.sessions, key)
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func snapshot(sess *Session) Session {
	out := *sess
	out.Payload = make(map[string]string, len(sess.Payload))
	for k, v := range sess.Payload {
		out.Payload[k] = v
	}
	return out
}
