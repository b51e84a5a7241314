package creds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/EpicVillage/Trello-Bot/trello"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	root := t.TempDir()
	store, err := NewFileStore(
		filepath.Join(root, "credentials.json"),
		filepath.Join(root, ".fslocks"),
	)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func newValidationServer(t *testing.T, acceptAll bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptAll && r.URL.Query().Get("token") == "bad-token" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(trello.Member{
			ID:       "m-" + r.URL.Query().Get("key"),
			Username: "user-" + r.URL.Query().Get("key"),
			FullName: "Account " + r.URL.Query().Get("key"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveDefaultsBeforeAnyOverride(t *testing.T) {
	t.Parallel()

	r := NewResolver(newTestStore(t), nil, "", "default-key", "default-token", nil)
	cred, err := r.Resolve(context.Background(), "123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cred.Default {
		t.Fatalf("expected default credential")
	}
	if cred.APIKey != "default-key" || cred.Token != "default-token" {
		t.Fatalf("unexpected pair: %+v", cred)
	}
}

func TestSetCredentialValidationFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := newValidationServer(t, false)
	r := NewResolver(newTestStore(t), srv.Client(), srv.URL, "dk", "dt", nil)

	// Seed a working override first.
	res, err := r.SetCredential(ctx, "123", "good-key", "good-token", "Work")
	if err != nil || !res.Valid {
		t.Fatalf("seed SetCredential: res=%+v err=%v", res, err)
	}

	// A pair that fails validation must not replace it.
	res, err = r.SetCredential(ctx, "123", "new-key", "bad-token", "")
	if err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if res.Valid || res.Reason == "" {
		t.Fatalf("expected structured rejection, got %+v", res)
	}

	cred, err := r.Resolve(ctx, "123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.APIKey != "good-key" || cred.Token != "good-token" {
		t.Fatalf("prior record was disturbed: %+v", cred)
	}
}

func TestIndependentChatsGetIndependentClients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := newValidationServer(t, true)
	r := NewResolver(newTestStore(t), srv.Client(), srv.URL, "dk", "dt", nil)

	if _, err := r.SetCredential(ctx, "111", "key-a", "token-a", "A"); err != nil {
		t.Fatalf("SetCredential 111: %v", err)
	}
	if _, err := r.SetCredential(ctx, "222", "key-b", "token-b", "B"); err != nil {
		t.Fatalf("SetCredential 222: %v", err)
	}

	credA, err := r.Resolve(ctx, "111")
	if err != nil || credA.APIKey != "key-a" {
		t.Fatalf("Resolve 111: %+v err=%v", credA, err)
	}
	credB, err := r.Resolve(ctx, "222")
	if err != nil || credB.APIKey != "key-b" {
		t.Fatalf("Resolve 222: %+v err=%v", credB, err)
	}

	clientA, _, err := r.Client(ctx, "111")
	if err != nil {
		t.Fatalf("Client 111: %v", err)
	}
	clientB, _, err := r.Client(ctx, "222")
	if err != nil {
		t.Fatalf("Client 222: %v", err)
	}
	if clientA == clientB {
		t.Fatalf("distinct pairs must get distinct clients")
	}
	if got := r.CachedClients(); got != 2 {
		t.Fatalf("cache size = %d, want 2", got)
	}

	// Same pair resolves to the same cached instance.
	clientA2, _, err := r.Client(ctx, "111")
	if err != nil {
		t.Fatalf("Client 111 again: %v", err)
	}
	if clientA2 != clientA {
		t.Fatalf("expected cached client reuse")
	}
}

func TestRemoveCredentialFallsBackToDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := newValidationServer(t, true)
	r := NewResolver(newTestStore(t), srv.Client(), srv.URL, "dk", "dt", nil)

	if _, err := r.SetCredential(ctx, "123", "key-a", "token-a", ""); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if _, _, err := r.Client(ctx, "123"); err != nil {
		t.Fatalf("Client: %v", err)
	}
	if r.CachedClients() == 0 {
		t.Fatalf("expected cached client before removal")
	}

	removed, err := r.RemoveCredential(ctx, "123")
	if err != nil || !removed {
		t.Fatalf("RemoveCredential: removed=%v err=%v", removed, err)
	}
	if r.CachedClients() != 0 {
		t.Fatalf("cache must be invalidated on removal")
	}

	cred, err := r.Resolve(ctx, "123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !cred.Default || cred.APIKey != "dk" {
		t.Fatalf("expected default pair after removal: %+v", cred)
	}

	removed, err = r.RemoveCredential(ctx, "123")
	if err != nil {
		t.Fatalf("second RemoveCredential: %v", err)
	}
	if removed {
		t.Fatalf("second removal must report no change")
	}
}

func TestGetRefreshesLastUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Put(ctx, "123", Record{APIKey: "k", Token: "t"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	first, found, err := store.Get(ctx, "123")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	second, _, err := store.Get(ctx, "123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second.LastUsedAt.Before(first.LastUsedAt) {
		t.Fatalf("LastUsedAt must not go backwards: %v then %v", first.LastUsedAt, second.LastUsedAt)
	}
}
