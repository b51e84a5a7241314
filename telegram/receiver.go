package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	updateBuffer = 64
	errorBuffer  = 16

	pollErrorPause = 1 * time.Second
)

// Receiver owns the long-poll loop. It forwards updates on one
// channel and classified stream failures on another; the supervisor
// in the bot package decides what to do about the failures. At most
// one polling goroutine runs at a time; the getUpdates offset
// survives stop/start cycles so no update is re-delivered after a
// reconnect.
type Receiver struct {
	api         *API
	logger      *slog.Logger
	pollTimeout time.Duration

	updates chan Update
	errs    chan error

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	offset  int64
	wg      sync.WaitGroup
}

func NewReceiver(api *API, logger *slog.Logger, pollTimeout time.Duration) *Receiver {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		api:         api,
		logger:      logger,
		pollTimeout: pollTimeout,
		updates:     make(chan Update, updateBuffer),
		errs:        make(chan error, errorBuffer),
	}
}

func (r *Receiver) Updates() <-chan Update { return r.updates }

// Errors yields stream failures. Conflict errors (IsConflict) are
// fatal: the loop has already stopped itself when one is delivered.
func (r *Receiver) Errors() <-chan error { return r.errs }

func (r *Receiver) Receiving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Probe performs the lightweight who-am-i round trip used by the
// liveness loop, independent of the polling goroutine.
func (r *Receiver) Probe(ctx context.Context) error {
	_, err := r.api.GetMe(ctx)
	return err
}

// Start launches the polling loop. Starting an already-running
// receiver is a no-op.
func (r *Receiver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go r.poll(ctx)
}

// Stop cancels the polling loop and waits for it to exit.
func (r *Receiver) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Receiver) markStopped() {
	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.mu.Unlock()
}

func (r *Receiver) poll(ctx context.Context) {
	defer r.wg.Done()
	defer r.markStopped()

	r.logger.Info("telegram_poll_start", "timeout", r.pollTimeout.String())
	for {
		if ctx.Err() != nil {
			return
		}

		r.mu.Lock()
		offset := r.offset
		r.mu.Unlock()

		updates, next, err := r.api.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.pushError(err)
			if IsConflict(err) {
				// A second instance owns the token. Stop rather than
				// fight it over updates.
				r.logger.Error("telegram_poll_conflict", "error", err.Error())
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollErrorPause):
			}
			continue
		}

		r.mu.Lock()
		r.offset = next
		r.mu.Unlock()

		for _, u := range updates {
			select {
			case r.updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Receiver) pushError(err error) {
	select {
	case r.errs <- err:
	default:
		r.logger.Warn("telegram_error_dropped", "error", err.Error())
	}
}
