package creds

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/EpicVillage/Trello-Bot/trello"
)

// Resolver resolves chat identities to credential pairs and hands out
// Trello clients. One client is constructed per distinct (key, token)
// pair and reused; the whole cache is dropped whenever any credential
// changes so a stale handle can never serve another chat's data.
type Resolver struct {
	store      *FileStore
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	defaultKey   string
	defaultToken string

	mu      sync.Mutex
	clients map[string]*trello.Client
}

func NewResolver(store *FileStore, httpClient *http.Client, baseURL, defaultKey, defaultToken string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:        store,
		httpClient:   httpClient,
		baseURL:      strings.TrimSpace(baseURL),
		logger:       logger,
		defaultKey:   strings.TrimSpace(defaultKey),
		defaultToken: strings.TrimSpace(defaultToken),
		clients:      make(map[string]*trello.Client),
	}
}

// Resolve never fails to produce a pair: chats without a record get
// the process-wide default.
func (r *Resolver) Resolve(ctx context.Context, chatID string) (Credential, error) {
	rec, found, err := r.store.Get(ctx, chatID)
	if err != nil {
		return Credential{}, err
	}
	if !found {
		return Credential{
			APIKey:  r.defaultKey,
			Token:   r.defaultToken,
			Default: true,
		}, nil
	}
	return Credential{
		APIKey:         rec.APIKey,
		Token:          rec.Token,
		WorkspaceLabel: rec.WorkspaceLabel,
	}, nil
}

// Client resolves the chat's credential and returns the cached Trello
// client for that pair, constructing it on first use.
func (r *Resolver) Client(ctx context.Context, chatID string) (*trello.Client, Credential, error) {
	cred, err := r.Resolve(ctx, chatID)
	if err != nil {
		return nil, Credential{}, err
	}
	key := cred.APIKey + "\x00" + cred.Token
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[key]
	if !ok {
		client = trello.NewClient(r.httpClient, r.baseURL, cred.APIKey, cred.Token)
		r.clients[key] = client
	}
	return client, cred, nil
}

// CachedClients reports how many distinct credential pairs currently
// hold a client.
func (r *Resolver) CachedClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Resolver) invalidateClients() {
	r.mu.Lock()
	r.clients = make(map[string]*trello.Client)
	r.mu.Unlock()
}

// SetCredential validates the pair against Trello with a live round
// trip before persisting anything. A rejected pair leaves prior state
// untouched and is reported through the returned ValidationResult.
func (r *Resolver) SetCredential(ctx context.Context, chatID, apiKey, token, workspaceLabel string) (trello.ValidationResult, error) {
	res, err := trello.ValidateCredential(ctx, r.httpClient, r.baseURL, apiKey, token)
	if err != nil {
		return trello.ValidationResult{}, err
	}
	if !res.Valid {
		return res, nil
	}
	label := strings.TrimSpace(workspaceLabel)
	if label == "" {
		label = res.AccountLabel
	}
	if err := r.store.Put(ctx, chatID, Record{
		APIKey:         strings.TrimSpace(apiKey),
		Token:          strings.TrimSpace(token),
		WorkspaceLabel: label,
	}); err != nil {
		return trello.ValidationResult{}, err
	}
	r.invalidateClients()
	r.logger.Info("credential_set", "chat", chatID, "workspace", label)
	res.AccountLabel = label
	return res, nil
}

// RemoveCredential deletes the chat's record and drops all cached
// clients. The caller is responsible for clearing the chat's board
// and list configuration, which belongs to the old account namespace.
func (r *Resolver) RemoveCredential(ctx context.Context, chatID string) (bool, error) {
	removed, err := r.store.Delete(ctx, chatID)
	if err != nil {
		return false, err
	}
	if removed {
		r.invalidateClients()
		r.logger.Info("credential_removed", "chat", chatID)
	}
	return removed, nil
}
