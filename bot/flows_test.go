package bot

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/EpicVillage/Trello-Bot/session"
)

func TestIdeaCaptureHappyPath(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")
	ctx := context.Background()
	if err := h.prefs.SetBoard(ctx, "1", "b1"); err != nil {
		t.Fatalf("SetBoard: %v", err)
	}

	h.send(1, 1, "/idea")
	h.send(1, 1, "Buy milk\n- 2% \n- https://example.com/milk")

	sess, ok := h.sessions.Get("1")
	if !ok || sess.Step != session.StepWaitingForList {
		t.Fatalf("expected waiting_for_list, got %+v (found=%v)", sess, ok)
	}
	if sess.Payload[payloadTitle] != "Buy milk" {
		t.Fatalf("title = %q", sess.Payload[payloadTitle])
	}

	h.tap(1, 1, ListChoiceAction{ListID: "l1"}.Token())

	h.mu.Lock()
	created := append([]url.Values(nil), h.created...)
	h.mu.Unlock()
	if len(created) != 1 {
		t.Fatalf("created %d cards", len(created))
	}
	q := created[0]
	if got := q["name"]; len(got) != 1 || got[0] != "Buy milk" {
		t.Fatalf("card name = %v", got)
	}
	if got := q["idList"]; len(got) != 1 || got[0] != "l1" {
		t.Fatalf("card list = %v", got)
	}
	desc := q["desc"]
	if len(desc) != 1 || !strings.Contains(desc[0], "Links:\n- https://example.com/milk") {
		t.Fatalf("card desc = %v", desc)
	}

	if h.sessions.Len() != 0 {
		t.Fatalf("session must be consumed after card creation")
	}
	stats, err := h.prefs.GetStats(ctx, "1")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.IdeasCreated != 1 {
		t.Fatalf("IdeasCreated = %d", stats.IdeasCreated)
	}
}

func TestIdeaWithoutBoardEndsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")

	h.send(1, 1, "/idea")
	h.send(1, 1, "Buy milk")

	if got := h.lastSent(); !strings.Contains(got, "/setboard") {
		t.Fatalf("got %q", got)
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("session must end when no board is configured")
	}
}

func TestIdeaBlankTitleKeepsSessionAlive(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")
	if err := h.prefs.SetBoard(context.Background(), "1", "b1"); err != nil {
		t.Fatalf("SetBoard: %v", err)
	}

	h.send(1, 1, "/idea")
	h.send(1, 1, "https://example.com/only-a-link")

	sess, ok := h.sessions.Get("1")
	if !ok || sess.Step != session.StepWaitingForIdea {
		t.Fatalf("session should still wait for an idea, got %+v (found=%v)", sess, ok)
	}
	if got := h.lastSent(); !strings.Contains(got, "title") {
		t.Fatalf("got %q", got)
	}
}

func TestFreeTextWhileWaitingForListIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")
	ctx := context.Background()
	if err := h.prefs.SetBoard(ctx, "1", "b1"); err != nil {
		t.Fatalf("SetBoard: %v", err)
	}

	h.send(1, 1, "/idea")
	h.send(1, 1, "Buy milk")
	h.send(1, 1, "some stray text")

	sess, ok := h.sessions.Get("1")
	if !ok || sess.Step != session.StepWaitingForList {
		t.Fatalf("stray text must not change state, got %+v (found=%v)", sess, ok)
	}
	if sess.Payload[payloadTitle] != "Buy milk" {
		t.Fatalf("payload lost: %+v", sess.Payload)
	}
}

func TestCancelDeletesActiveSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")
	if err := h.prefs.SetBoard(context.Background(), "1", "b1"); err != nil {
		t.Fatalf("SetBoard: %v", err)
	}

	h.send(1, 1, "/idea")
	h.send(1, 1, "Buy milk")
	if sess, ok := h.sessions.Get("1"); !ok || sess.Step != session.StepWaitingForList {
		t.Fatalf("expected waiting_for_list, got %+v (found=%v)", sess, ok)
	}

	h.send(1, 1, "/cancel")

	if got := h.lastSent(); !strings.Contains(got, "Canceled") {
		t.Fatalf("got %q", got)
	}
	if _, ok := h.sessions.Get("1"); ok {
		t.Fatalf("cancel must delete the session entirely")
	}
}

func TestRevokedSenderCannotAdvanceSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")
	ctx := context.Background()
	if _, err := h.gate.Authorize(ctx, "50", "user"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := h.prefs.SetBoard(ctx, "50", "b1"); err != nil {
		t.Fatalf("SetBoard: %v", err)
	}

	h.send(50, 50, "/idea")
	if _, err := h.gate.Unauthorize(ctx, "50", "user"); err != nil {
		t.Fatalf("Unauthorize: %v", err)
	}
	h.send(50, 50, "Buy milk")

	sess, ok := h.sessions.Get("50")
	if !ok || sess.Step != session.StepWaitingForIdea {
		t.Fatalf("revoked sender advanced the session: %+v (found=%v)", sess, ok)
	}
}

func TestRevokedSenderCannotFinishIdeaViaKeyboard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")
	ctx := context.Background()
	if _, err := h.gate.Authorize(ctx, "50", "user"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := h.prefs.SetBoard(ctx, "50", "b1"); err != nil {
		t.Fatalf("SetBoard: %v", err)
	}

	h.send(50, 50, "/idea")
	h.send(50, 50, "Buy milk")
	if _, err := h.gate.Unauthorize(ctx, "50", "user"); err != nil {
		t.Fatalf("Unauthorize: %v", err)
	}

	h.tap(50, 50, ListChoiceAction{ListID: "l1"}.Token())

	h.mu.Lock()
	created := len(h.created)
	h.mu.Unlock()
	if created != 0 {
		t.Fatalf("revoked sender created %d cards via the keyboard", created)
	}
}

func TestWorkspaceSetupHappyPath(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")
	ctx := context.Background()
	if err := h.prefs.SetBoard(ctx, "1", "stale-board"); err != nil {
		t.Fatalf("SetBoard: %v", err)
	}

	h.send(1, 1, "/workspace")
	h.send(1, 1, "key: my-key\ntoken: my-token")

	if got := h.lastSent(); !strings.Contains(got, "Workspace connected") {
		t.Fatalf("got %q", got)
	}
	if h.sessions.Len() != 0 {
		t.Fatalf("session must be consumed")
	}
	cfg, err := h.prefs.GetConfig(ctx, "1")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.BoardID != "" {
		t.Fatalf("board from the old account must be cleared, got %q", cfg.BoardID)
	}
}

func TestWorkspaceSetupRejectedCredentialKeepsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")

	h.send(1, 1, "/workspace")
	h.send(1, 1, "key: my-key\ntoken: bad-token")

	if got := h.lastSent(); !strings.Contains(got, "don't work") {
		t.Fatalf("got %q", got)
	}
	sess, ok := h.sessions.Get("1")
	if !ok || sess.Step != session.StepWaitingForCredentials {
		t.Fatalf("session should survive a rejected pair, got %+v (found=%v)", sess, ok)
	}
}

func TestWorkspaceSetupUnparseableInputKeepsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1")

	h.send(1, 1, "/workspace")
	h.send(1, 1, "here you go")

	if got := h.lastSent(); !strings.Contains(got, "two lines") {
		t.Fatalf("got %q", got)
	}
	if _, ok := h.sessions.Get("1"); !ok {
		t.Fatalf("session should survive a parse failure")
	}
}

func TestParseCredentialBlob(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      string
		key     string
		token   string
		label   string
		ok      bool
	}{
		{name: "two bare lines", in: "k1\nt1", key: "k1", token: "t1", ok: true},
		{name: "two bare lines with blanks", in: "\nk1\n\nt1\n", key: "k1", token: "t1", ok: true},
		{name: "labeled", in: "key: k1\ntoken: t1", key: "k1", token: "t1", ok: true},
		{name: "labeled reversed with label", in: "token: t1\nlabel: Work\nkey: k1", key: "k1", token: "t1", label: "Work", ok: true},
		{name: "labeled case insensitive", in: "Key: k1\nTOKEN: t1", key: "k1", token: "t1", ok: true},
		{name: "single line", in: "just-a-key", ok: false},
		{name: "three bare lines", in: "a\nb\nc", ok: false},
		{name: "key without token", in: "key: k1", ok: false},
		{name: "empty", in: "   \n  ", ok: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			key, token, label, ok := parseCredentialBlob(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if key != tc.key || token != tc.token || label != tc.label {
				t.Fatalf("got (%q, %q, %q), want (%q, %q, %q)", key, token, label, tc.key, tc.token, tc.label)
			}
		})
	}
}
