package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrRequestNotFound = errors.New("auth: access request not found")

// Gate answers "may this identity act here" and owns all mutations of
// the authorization state. Group chats are evaluated against the
// group identity (anyone in an authorized group may act); private
// chats against the sender.
type Gate struct {
	store  *FileStore
	admins map[string]bool
	logger *slog.Logger
}

func NewGate(store *FileStore, admins []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	adminSet := make(map[string]bool, len(admins))
	for _, id := range admins {
		id = strings.TrimSpace(id)
		if id != "" {
			adminSet[id] = true
		}
	}
	return &Gate{store: store, admins: adminSet, logger: logger}
}

func (g *Gate) IsAdmin(identity string) bool {
	return g.admins[strings.TrimSpace(identity)]
}

// Admins returns the boot-supplied admin identities.
func (g *Gate) Admins() []string {
	out := make([]string, 0, len(g.admins))
	for id := range g.admins {
		out = append(out, id)
	}
	return out
}

// IsAuthorized re-reads the persisted state on every call so edits by
// concurrent admin actions are honored. Admins always pass.
func (g *Gate) IsAuthorized(ctx context.Context, senderID, chatID string, isGroup bool) (bool, error) {
	senderID = strings.TrimSpace(senderID)
	if g.admins[senderID] {
		return true, nil
	}
	state, err := g.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if isGroup {
		return state.hasGroup(strings.TrimSpace(chatID)), nil
	}
	return state.hasUser(senderID), nil
}

// RequestAccess creates a pending request unless one already exists
// for the same (requester, chat) pair, in which case it returns nil
// without touching state.
func (g *Gate) RequestAccess(ctx context.Context, req AccessRequest) (*AccessRequest, error) {
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.Kind == "" {
		req.Kind = KindUser
	}

	var created *AccessRequest
	err := g.store.Mutate(ctx, func(state *State) error {
		for _, existing := range state.Requests {
			if existing.Status == StatusPending &&
				existing.RequesterID == req.RequesterID &&
				existing.ChatID == req.ChatID {
				return nil
			}
		}
		req.ID = uuid.NewString()
		req.Status = StatusPending
		req.RequestedAt = time.Now().UTC()
		state.Requests = append(state.Requests, req)
		created = &req
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		g.logger.Info("access_requested",
			"request_id", created.ID,
			"requester", created.RequesterID,
			"chat", created.ChatID,
			"kind", string(created.Kind),
		)
	}
	return created, nil
}

// PendingRequests returns pending requests in arrival order.
func (g *Gate) PendingRequests(ctx context.Context) ([]AccessRequest, error) {
	state, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	var pending []AccessRequest
	for _, req := range state.Requests {
		if req.Status == StatusPending {
			pending = append(pending, req)
		}
	}
	return pending, nil
}

// Authorize grants access to an identity. Returns false when the
// identity was already authorized (no change).
func (g *Gate) Authorize(ctx context.Context, identity string, kind RequestKind) (bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, nil
	}
	changed := false
	err := g.store.Mutate(ctx, func(state *State) error {
		switch kind {
		case KindGroup:
			if state.hasGroup(identity) {
				return nil
			}
			state.Groups = append(state.Groups, identity)
		default:
			if state.hasUser(identity) {
				return nil
			}
			state.Users = append(state.Users, identity)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		g.logger.Info("authorized", "identity", identity, "kind", string(kind))
	}
	return changed, nil
}

// Unauthorize revokes access. Always returns false for admins, whose
// authorization is not revocable, and for identities that were not
// authorized to begin with.
func (g *Gate) Unauthorize(ctx context.Context, identity string, kind RequestKind) (bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || g.admins[identity] {
		return false, nil
	}
	changed := false
	err := g.store.Mutate(ctx, func(state *State) error {
		switch kind {
		case KindGroup:
			if !state.hasGroup(identity) {
				return nil
			}
			state.Groups = remove(state.Groups, identity)
		default:
			if !state.hasUser(identity) {
				return nil
			}
			state.Users = remove(state.Users, identity)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		g.logger.Info("unauthorized", "identity", identity, "kind", string(kind))
	}
	return changed, nil
}

// Approve transitions a pending request to approved and authorizes
// the requester (user kind) or the chat (group kind). Resolving an
// already-resolved request returns the request with changed=false.
func (g *Gate) Approve(ctx context.Context, requestID string) (*AccessRequest, bool, error) {
	return g.resolve(ctx, requestID, StatusApproved)
}

// Reject transitions a pending request to rejected.
func (g *Gate) Reject(ctx context.Context, requestID string) (*AccessRequest, bool, error) {
	return g.resolve(ctx, requestID, StatusRejected)
}

func (g *Gate) resolve(ctx context.Context, requestID string, status RequestStatus) (*AccessRequest, bool, error) {
	requestID = strings.TrimSpace(requestID)
	var resolved *AccessRequest
	changed := false
	err := g.store.Mutate(ctx, func(state *State) error {
		for i := range state.Requests {
			req := &state.Requests[i]
			if req.ID != requestID {
				continue
			}
			if req.Status != StatusPending {
				copied := *req
				resolved = &copied
				return nil
			}
			now := time.Now().UTC()
			req.Status = status
			req.ResolvedAt = &now
			if status == StatusApproved {
				if req.Kind == KindGroup {
					if !state.hasGroup(req.ChatID) {
						state.Groups = append(state.Groups, req.ChatID)
					}
				} else if !state.hasUser(req.RequesterID) {
					state.Users = append(state.Users, req.RequesterID)
				}
			}
			copied := *req
			resolved = &copied
			changed = true
			return nil
		}
		return ErrRequestNotFound
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		g.logger.Info("access_request_resolved",
			"request_id", requestID,
			"status", string(status),
		)
	}
	return resolved, changed, nil
}
