package trello

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.Client(), srv.URL, "test-key", "test-token")
}

func TestClientSendsCredentialQuery(t *testing.T) {
	t.Parallel()

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key query = %q", got)
		}
		if got := r.URL.Query().Get("token"); got != "test-token" {
			t.Errorf("token query = %q", got)
		}
		_ = json.NewEncoder(w).Encode(Member{ID: "m1", Username: "alice", FullName: "Alice"})
	})

	me, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Username != "alice" {
		t.Fatalf("unexpected member: %+v", me)
	}
}

func TestClientStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"not_found", http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			_, err := client.GetCard(context.Background(), "abc")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateCardParams(t *testing.T) {
	t.Parallel()

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("idList") != "list9" || q.Get("name") != "Buy milk" {
			t.Errorf("unexpected query: %v", q)
		}
		if q.Get("desc") != "Details:\n- 2%" {
			t.Errorf("desc = %q", q.Get("desc"))
		}
		_ = json.NewEncoder(w).Encode(Card{ID: "card1", Name: "Buy milk", IDList: "list9"})
	})

	card, err := client.CreateCard(context.Background(), "list9", "Buy milk", "Details:\n- 2%")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if card.ID != "card1" {
		t.Fatalf("unexpected card: %+v", card)
	}
}

func TestCreateCardRequiresTitle(t *testing.T) {
	t.Parallel()

	client := NewClient(nil, "http://127.0.0.1:0", "k", "t")
	if _, err := client.CreateCard(context.Background(), "list1", "   ", ""); err == nil {
		t.Fatalf("expected error for blank title")
	}
}

func TestValidateCredential(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Member{ID: "m1", Username: "bob", FullName: "Bob B"})
		}))
		defer srv.Close()

		res, err := ValidateCredential(context.Background(), srv.Client(), srv.URL, "k", "t")
		if err != nil {
			t.Fatalf("ValidateCredential: %v", err)
		}
		if !res.Valid || res.AccountLabel != "Bob B" {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}))
		defer srv.Close()

		res, err := ValidateCredential(context.Background(), srv.Client(), srv.URL, "k", "t")
		if err != nil {
			t.Fatalf("ValidateCredential: %v", err)
		}
		if res.Valid || res.Reason == "" {
			t.Fatalf("expected rejection with reason, got %+v", res)
		}
	})

	t.Run("empty_pair", func(t *testing.T) {
		t.Parallel()
		res, err := ValidateCredential(context.Background(), nil, "", " ", "")
		if err != nil {
			t.Fatalf("ValidateCredential: %v", err)
		}
		if res.Valid {
			t.Fatalf("expected invalid for empty pair")
		}
	})
}
