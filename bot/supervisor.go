package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/EpicVillage/Trello-Bot/internal/retryutil"
	"github.com/EpicVillage/Trello-Bot/telegram"
)

// Stream is the slice of the inbound transport the supervisor drives.
// *telegram.Receiver satisfies it.
type Stream interface {
	Start()
	Stop()
	Receiving() bool
	Probe(ctx context.Context) error
	Errors() <-chan error
}

// Health is the authoritative connection status, readable via the
// /status command.
type Health struct {
	Connected                  bool
	ReconnectAttempts          int
	ReconnectDelay             time.Duration
	LastSuccessfulConnectionAt time.Time
	// Failed: the probe layer exhausted its attempts; no automatic
	// recovery is scheduled until an operator restarts the process.
	Failed bool
	// FatalConflict: a second instance owns the bot token.
	FatalConflict bool
}

type SupervisorConfig struct {
	ProbeInterval        time.Duration
	ProbeTimeout         time.Duration
	BackoffFloor         time.Duration
	BackoffCeiling       time.Duration
	BackoffGrowth        float64
	MaxReconnectAttempts int
	MaxStreamErrors      int
	LastAttemptDelay     time.Duration
	RestartCheckInterval time.Duration
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 60 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = 5 * time.Second
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 5 * time.Minute
	}
	if c.BackoffGrowth <= 1 {
		c.BackoffGrowth = 2.0
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.MaxStreamErrors <= 0 {
		c.MaxStreamErrors = 5
	}
	if c.LastAttemptDelay <= 0 {
		c.LastAttemptDelay = 30 * time.Second
	}
	if c.RestartCheckInterval <= 0 {
		c.RestartCheckInterval = 5 * time.Minute
	}
	return c
}

// Supervisor keeps the inbound stream alive. Earlier iterations of
// this design ran three uncoordinated recovery mechanisms; here all
// of them (liveness probe, stream-error handling, coarse restart
// check) run in one goroutine against one state, so there is a single
// answer to "should I be retrying right now".
type Supervisor struct {
	stream Stream
	logger *slog.Logger
	cfg    SupervisorConfig

	mu           sync.Mutex
	health       Health
	streamErrors int
	lastAttempt  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(stream Stream, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Supervisor{
		stream: stream,
		logger: logger,
		cfg:    cfg,
		health: Health{ReconnectDelay: cfg.BackoffFloor},
	}
}

// Status returns a copy of the current health.
func (s *Supervisor) Status() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Supervisor) shouldRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.health.Failed && !s.health.FatalConflict
}

// Start launches the stream and the supervision loop.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.stream.Start()
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels supervision and stops the stream. Safe to call once
// after Start.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.stream.Stop()
}

func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()

	probe := time.NewTicker(s.cfg.ProbeInterval)
	defer probe.Stop()
	restart := time.NewTicker(s.cfg.RestartCheckInterval)
	defer restart.Stop()

	// Establish initial health before the first tick.
	s.probeOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case <-probe.C:
			s.probeOnce(ctx)

		case err, ok := <-s.stream.Errors():
			if !ok {
				return
			}
			s.handleStreamError(ctx, err)

		case <-restart.C:
			// Coarse safety net: the stream is simply not running and
			// nothing else noticed.
			if s.shouldRetry() && !s.stream.Receiving() {
				s.logger.Warn("supervisor_stream_not_running_restart")
				s.stream.Start()
			}
		}
	}
}

func (s *Supervisor) probeOnce(ctx context.Context) {
	if !s.shouldRetry() {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	err := s.stream.Probe(probeCtx)
	cancel()
	if err == nil {
		s.markConnected()
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.logger.Warn("supervisor_probe_failed", "error", err.Error())
	s.markDisconnected()
	s.reconnect(ctx)
}

// reconnect runs the backoff procedure synchronously in the loop
// goroutine: stop, wait the current delay, start, probe. Attempts are
// capped; exhausting them parks the supervisor in the failed state.
func (s *Supervisor) reconnect(ctx context.Context) {
	for s.shouldRetry() {
		s.mu.Lock()
		delay := s.health.ReconnectDelay
		attempt := s.health.ReconnectAttempts + 1
		s.mu.Unlock()

		s.logger.Info("supervisor_reconnect",
			"attempt", attempt,
			"delay", delay.String(),
		)

		s.stream.Stop()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		s.stream.Start()

		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		err := s.stream.Probe(probeCtx)
		cancel()
		if err == nil {
			s.markConnected()
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("supervisor_reconnect_failed", "attempt", attempt, "error", err.Error())

		s.mu.Lock()
		s.health.ReconnectAttempts = attempt
		next := time.Duration(float64(s.health.ReconnectDelay) * s.cfg.BackoffGrowth)
		if next > s.cfg.BackoffCeiling {
			next = s.cfg.BackoffCeiling
		}
		s.health.ReconnectDelay = next
		exhausted := attempt >= s.cfg.MaxReconnectAttempts
		if exhausted {
			s.health.Failed = true
		}
		s.mu.Unlock()

		if exhausted {
			s.logger.Error("supervisor_gave_up", "attempts", attempt)
			return
		}
	}
}

// handleStreamError classifies failures coming out of the polling
// loop itself. This counter is independent of the probe layer's
// reconnect attempts and is capped lower; past the cap a single
// delayed last attempt fires, then the stream stays down until the
// probe or coarse layer notices.
func (s *Supervisor) handleStreamError(ctx context.Context, err error) {
	if telegram.IsConflict(err) {
		s.mu.Lock()
		s.health.FatalConflict = true
		s.health.Connected = false
		s.mu.Unlock()
		s.logger.Error("supervisor_conflict_fatal", "error", err.Error())
		return
	}

	s.mu.Lock()
	s.streamErrors++
	count := s.streamErrors
	alreadyFired := s.lastAttempt
	if count >= s.cfg.MaxStreamErrors {
		s.lastAttempt = true
	}
	s.mu.Unlock()

	s.logger.Warn("supervisor_stream_error", "count", count, "error", err.Error())

	if count < s.cfg.MaxStreamErrors || alreadyFired {
		return
	}

	s.stream.Stop()
	retryutil.AsyncRetry(s.logger, "stream_last_attempt", s.cfg.LastAttemptDelay, s.cfg.ProbeTimeout, func(retryCtx context.Context) error {
		if !s.shouldRetry() {
			return nil
		}
		s.stream.Start()
		if err := s.stream.Probe(retryCtx); err != nil {
			return err
		}
		s.markConnected()
		return nil
	})
}

func (s *Supervisor) markConnected() {
	s.mu.Lock()
	s.health.Connected = true
	s.health.ReconnectAttempts = 0
	s.health.ReconnectDelay = s.cfg.BackoffFloor
	s.health.LastSuccessfulConnectionAt = time.Now().UTC()
	s.streamErrors = 0
	s.lastAttempt = false
	s.mu.Unlock()
}

func (s *Supervisor) markDisconnected() {
	s.mu.Lock()
	s.health.Connected = false
	s.mu.Unlock()
}
