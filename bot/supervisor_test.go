package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EpicVillage/Trello-Bot/telegram"
)

type fakeStream struct {
	mu        sync.Mutex
	running   bool
	probeErr  error
	probes    atomic.Int64
	starts    atomic.Int64
	errs      chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{errs: make(chan error, 16)}
}

func (f *fakeStream) Start() {
	f.starts.Add(1)
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *fakeStream) Receiving() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeStream) Probe(ctx context.Context) error {
	f.probes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

func (f *fakeStream) setProbeErr(err error) {
	f.mu.Lock()
	f.probeErr = err
	f.mu.Unlock()
}

func (f *fakeStream) Errors() <-chan error { return f.errs }

func tinyConfig() SupervisorConfig {
	return SupervisorConfig{
		ProbeInterval:        20 * time.Millisecond,
		ProbeTimeout:         50 * time.Millisecond,
		BackoffFloor:         time.Millisecond,
		BackoffCeiling:       8 * time.Millisecond,
		BackoffGrowth:        2.0,
		MaxReconnectAttempts: 3,
		MaxStreamErrors:      2,
		LastAttemptDelay:     10 * time.Millisecond,
		RestartCheckInterval: 25 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSupervisorHealthyProbeResetsBackoff(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	sup := NewSupervisor(stream, tinyConfig(), nil)
	sup.Start()
	defer sup.Stop()

	waitFor(t, "connected health", func() bool { return sup.Status().Connected })

	h := sup.Status()
	if h.ReconnectAttempts != 0 || h.ReconnectDelay != time.Millisecond {
		t.Fatalf("unexpected health: %+v", h)
	}
	if h.LastSuccessfulConnectionAt.IsZero() {
		t.Fatalf("missing last success timestamp")
	}
}

func TestSupervisorGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.setProbeErr(errors.New("probe down"))
	sup := NewSupervisor(stream, tinyConfig(), nil)
	sup.Start()
	defer sup.Stop()

	waitFor(t, "failed state", func() bool { return sup.Status().Failed })

	h := sup.Status()
	if h.Connected {
		t.Fatalf("failed supervisor must not report connected")
	}
	if h.ReconnectAttempts != 3 {
		t.Fatalf("attempts = %d, want 3", h.ReconnectAttempts)
	}

	// No further automatic probing once failed.
	settled := stream.probes.Load()
	time.Sleep(150 * time.Millisecond)
	if got := stream.probes.Load(); got != settled {
		t.Fatalf("probe count grew after giving up: %d -> %d", settled, got)
	}
}

func TestSupervisorBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.setProbeErr(errors.New("down"))
	cfg := tinyConfig()
	cfg.MaxReconnectAttempts = 5
	sup := NewSupervisor(stream, cfg, nil)
	sup.Start()
	defer sup.Stop()

	waitFor(t, "failed state", func() bool { return sup.Status().Failed })

	// floor 1ms doubled per attempt, capped at 8ms.
	if got := sup.Status().ReconnectDelay; got != cfg.BackoffCeiling {
		t.Fatalf("delay = %v, want capped %v", got, cfg.BackoffCeiling)
	}
}

func TestSupervisorConflictIsFatal(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	sup := NewSupervisor(stream, tinyConfig(), nil)
	sup.Start()
	defer sup.Stop()

	waitFor(t, "connected", func() bool { return sup.Status().Connected })

	stream.errs <- telegram.ErrConflict
	waitFor(t, "fatal conflict", func() bool { return sup.Status().FatalConflict })

	// Conflict never triggers restarts, even via the coarse check.
	stream.Stop()
	starts := stream.starts.Load()
	time.Sleep(100 * time.Millisecond)
	if got := stream.starts.Load(); got != starts {
		t.Fatalf("stream restarted after fatal conflict: %d -> %d", starts, got)
	}
}

func TestSupervisorStreamErrorsTriggerLastAttempt(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	sup := NewSupervisor(stream, tinyConfig(), nil)
	sup.Start()
	defer sup.Stop()

	waitFor(t, "connected", func() bool { return sup.Status().Connected })

	starts := stream.starts.Load()
	stream.errs <- errors.New("net timeout")
	stream.errs <- errors.New("net timeout")

	// Past the cap the stream is stopped and one delayed recovery
	// start fires.
	waitFor(t, "last attempt restart", func() bool { return stream.starts.Load() > starts })
}

func TestSupervisorCoarseRestart(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	sup := NewSupervisor(stream, tinyConfig(), nil)
	sup.Start()
	defer sup.Stop()

	waitFor(t, "connected", func() bool { return sup.Status().Connected })

	// Simulate the stream dying without an error reaching anyone.
	stream.Stop()
	waitFor(t, "coarse restart", func() bool { return stream.Receiving() })
}
