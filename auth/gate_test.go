package auth

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestGate(t *testing.T, admins []string) *Gate {
	t.Helper()
	root := t.TempDir()
	store, err := NewFileStore(
		filepath.Join(root, "auth.json"),
		filepath.Join(root, ".fslocks"),
	)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewGate(store, admins, nil)
}

func TestAdminAlwaysAuthorized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := newTestGate(t, []string{"100"})

	ok, err := gate.IsAuthorized(ctx, "100", "anychat", false)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if !ok {
		t.Fatalf("admin must be authorized in private chat")
	}

	ok, err = gate.IsAuthorized(ctx, "100", "unauthorized-group", true)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if !ok {
		t.Fatalf("admin must be authorized even in unauthorized group")
	}
}

func TestUnauthorizeAdminAlwaysFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := newTestGate(t, []string{"100"})

	changed, err := gate.Unauthorize(ctx, "100", KindUser)
	if err != nil {
		t.Fatalf("Unauthorize: %v", err)
	}
	if changed {
		t.Fatalf("unauthorize of admin must report no change")
	}
	ok, _ := gate.IsAuthorized(ctx, "100", "c", false)
	if !ok {
		t.Fatalf("admin lost authorization")
	}
}

func TestGroupAuthorizationUsesGroupIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := newTestGate(t, nil)

	if _, err := gate.Authorize(ctx, "-500", KindGroup); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	// Any sender in the authorized group passes.
	ok, err := gate.IsAuthorized(ctx, "7777", "-500", true)
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if !ok {
		t.Fatalf("sender in authorized group must pass")
	}

	// The same sender in a private chat does not.
	ok, _ = gate.IsAuthorized(ctx, "7777", "7777", false)
	if ok {
		t.Fatalf("sender must not be authorized privately")
	}
}

func TestAuthorizeIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := newTestGate(t, nil)

	changed, err := gate.Authorize(ctx, "42", KindUser)
	if err != nil || !changed {
		t.Fatalf("first authorize: changed=%v err=%v", changed, err)
	}
	changed, err = gate.Authorize(ctx, "42", KindUser)
	if err != nil {
		t.Fatalf("second authorize: %v", err)
	}
	if changed {
		t.Fatalf("second authorize must report no change")
	}

	changed, err = gate.Unauthorize(ctx, "42", KindUser)
	if err != nil || !changed {
		t.Fatalf("unauthorize: changed=%v err=%v", changed, err)
	}
	changed, _ = gate.Unauthorize(ctx, "42", KindUser)
	if changed {
		t.Fatalf("second unauthorize must report no change")
	}
}

func TestDuplicatePendingRequestSuppressed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := newTestGate(t, nil)

	first, err := gate.RequestAccess(ctx, AccessRequest{
		RequesterID: "42", ChatID: "42", DisplayName: "Alice", Kind: KindUser,
	})
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if first == nil || first.ID == "" || first.Status != StatusPending {
		t.Fatalf("unexpected first request: %+v", first)
	}

	dup, err := gate.RequestAccess(ctx, AccessRequest{
		RequesterID: "42", ChatID: "42", Kind: KindUser,
	})
	if err != nil {
		t.Fatalf("RequestAccess dup: %v", err)
	}
	if dup != nil {
		t.Fatalf("duplicate pending request must return nil, got %+v", dup)
	}

	pending, err := gate.PendingRequests(ctx)
	if err != nil {
		t.Fatalf("PendingRequests: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending count = %d, want 1", len(pending))
	}

	// A different chat is a different pair.
	other, err := gate.RequestAccess(ctx, AccessRequest{
		RequesterID: "42", ChatID: "-99", Kind: KindGroup,
	})
	if err != nil || other == nil {
		t.Fatalf("request for other chat: req=%v err=%v", other, err)
	}
}

func TestApproveAuthorizesAndIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := newTestGate(t, nil)

	req, err := gate.RequestAccess(ctx, AccessRequest{
		RequesterID: "42", ChatID: "42", Kind: KindUser,
	})
	if err != nil || req == nil {
		t.Fatalf("RequestAccess: req=%v err=%v", req, err)
	}

	resolved, changed, err := gate.Approve(ctx, req.ID)
	if err != nil || !changed {
		t.Fatalf("Approve: changed=%v err=%v", changed, err)
	}
	if resolved.Status != StatusApproved || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved request: %+v", resolved)
	}

	ok, _ := gate.IsAuthorized(ctx, "42", "42", false)
	if !ok {
		t.Fatalf("approved requester must be authorized")
	}

	// Terminal: re-resolving reports no change and keeps the status.
	resolved, changed, err = gate.Reject(ctx, req.ID)
	if err != nil {
		t.Fatalf("Reject after approve: %v", err)
	}
	if changed || resolved.Status != StatusApproved {
		t.Fatalf("approved request must stay approved: changed=%v status=%s", changed, resolved.Status)
	}

	// The same user may file a new request once none is pending.
	again, err := gate.RequestAccess(ctx, AccessRequest{
		RequesterID: "42", ChatID: "42", Kind: KindUser,
	})
	if err != nil || again == nil {
		t.Fatalf("new request after resolution: req=%v err=%v", again, err)
	}
}

func TestApproveGroupRequestAuthorizesChat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := newTestGate(t, nil)

	req, err := gate.RequestAccess(ctx, AccessRequest{
		RequesterID: "7", ChatID: "-1234", ChatTitle: "Team", Kind: KindGroup,
	})
	if err != nil || req == nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if _, changed, err := gate.Approve(ctx, req.ID); err != nil || !changed {
		t.Fatalf("Approve: changed=%v err=%v", changed, err)
	}

	ok, _ := gate.IsAuthorized(ctx, "anyone", "-1234", true)
	if !ok {
		t.Fatalf("approved group must be authorized")
	}
	// The requester individually is not.
	ok, _ = gate.IsAuthorized(ctx, "7", "7", false)
	if ok {
		t.Fatalf("group approval must not authorize the requester privately")
	}
}

func TestResolveUnknownRequest(t *testing.T) {
	t.Parallel()

	gate := newTestGate(t, nil)
	_, _, err := gate.Approve(context.Background(), "nope")
	if err == nil {
		t.Fatalf("expected error for unknown request")
	}
}
