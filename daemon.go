package magik

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DaemonStatus is the lifecycle state of a background pump.
type DaemonStatus int32

const (
	// DaemonStopped is the initial state.
	DaemonStopped DaemonStatus = iota
	// DaemonRunning means Start succeeded and the pump is live.
	DaemonRunning
	// DaemonCompleted is terminal; Shutdown reaches it from any state.
	DaemonCompleted
)

func (s DaemonStatus) String() string {
	switch s {
	case DaemonStopped:
		return "stopped"
	case DaemonRunning:
		return "running"
	case DaemonCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Daemon is a long-running background pump. Start moves Stopped to Running;
// Shutdown is idempotent and terminal from any state.
type Daemon interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Status() DaemonStatus
}

func daemonName(d Daemon) string {
	if n, ok := d.(interface{ Name() string }); ok {
		return n.Name()
	}
	t := reflect.TypeOf(d)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

type pumpConfig struct {
	limit rate.Limit
	burst int
	log   zerolog.Logger
	after uint64
}

// PumpOption configures a pump daemon.
type PumpOption func(*pumpConfig)

// WithPumpRate throttles the pump to the given rate.
func WithPumpRate(limit rate.Limit, burst int) PumpOption {
	return func(cfg *pumpConfig) {
		cfg.limit = limit
		cfg.burst = burst
	}
}

// WithPumpLogger sets the pump's logger. The default discards everything.
func WithPumpLogger(log zerolog.Logger) PumpOption {
	return func(cfg *pumpConfig) {
		cfg.log = log
	}
}

// WithPumpResume starts pumping after the given position instead of from
// the beginning of the source journal.
func WithPumpResume(after uint64) PumpOption {
	return func(cfg *pumpConfig) {
		cfg.after = after
	}
}

// PumpDaemon tails a source journal and feeds every entry to a handler.
// Handler failures are logged and skipped; the pump keeps running until
// shut down or its context is cancelled. Cancellation is logged as
// cancellation, not as an error.
type PumpDaemon[E any] struct {
	name    string
	source  *Journal[E]
	handler func(ctx context.Context, pos uint64, v E) error
	limiter *rate.Limiter
	log     zerolog.Logger
	after   uint64

	mu     sync.Mutex
	status DaemonStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPumpDaemon creates a pump over a source journal.
func NewPumpDaemon[E any](name string, source *Journal[E], handler func(ctx context.Context, pos uint64, v E) error, opts ...PumpOption) *PumpDaemon[E] {
	cfg := &pumpConfig{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}
	d := &PumpDaemon[E]{
		name:    name,
		source:  source,
		handler: handler,
		log:     cfg.log.With().Str("daemon", name).Logger(),
		after:   cfg.after,
		done:    make(chan struct{}),
	}
	if cfg.limit > 0 {
		d.limiter = rate.NewLimiter(cfg.limit, max(cfg.burst, 1))
	}
	return d
}

// NewTransformPump creates a pump that carries entries from one journal
// into another through a transform.
func NewTransformPump[A, B any](name string, src *Journal[A], dst *Journal[B], fn func(ctx context.Context, v A) (B, error), opts ...PumpOption) *PumpDaemon[A] {
	return NewPumpDaemon(name, src, func(ctx context.Context, pos uint64, v A) error {
		out, err := fn(ctx, v)
		if err != nil {
			return err
		}
		_, err = dst.Write(ctx, out)
		return err
	}, opts...)
}

// Name returns the daemon's name.
func (d *PumpDaemon[E]) Name() string { return d.name }

// Status returns the daemon's lifecycle state.
func (d *PumpDaemon[E]) Status() DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Start launches the pump loop. Only a Stopped daemon can start.
func (d *PumpDaemon[E]) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != DaemonStopped {
		return fmt.Errorf("magik: daemon %q: cannot start from state %s", d.name, d.status)
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.status = DaemonRunning
	go d.run(runCtx)
	d.log.Debug().Msg("pump started")
	return nil
}

func (d *PumpDaemon[E]) run(ctx context.Context) {
	defer close(d.done)
	for pos, e := range d.source.Tail(ctx, d.after) {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				break
			}
		}
		if err := d.handler(ctx, pos, e); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.log.Debug().Uint64("position", pos).Msg("pump cancelled")
				return
			}
			d.log.Error().Err(err).Uint64("position", pos).Msg("pump handler failed")
		}
	}
	d.log.Debug().Msg("pump cancelled")
}

// Shutdown stops the pump and waits for the loop to drain. It is
// idempotent and moves the daemon to Completed from any state.
func (d *PumpDaemon[E]) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	switch d.status {
	case DaemonCompleted:
		d.mu.Unlock()
		return nil
	case DaemonStopped:
		d.status = DaemonCompleted
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	d.status = DaemonCompleted
	d.mu.Unlock()
	d.log.Debug().Msg("pump completed")
	return nil
}

// CompositeDaemon starts and stops a group of inner daemons as one unit.
// Start is atomic: if any inner daemon fails to start, every daemon that
// had already reached Running is shut down again in reverse start order and
// the composite reports a DaemonStartError.
type CompositeDaemon struct {
	name  string
	inner []Daemon
	log   zerolog.Logger

	mu     sync.Mutex
	status DaemonStatus
}

// NewCompositeDaemon creates a supervisor over the inner daemons, started
// in the given order.
func NewCompositeDaemon(name string, inner ...Daemon) *CompositeDaemon {
	return &CompositeDaemon{name: name, inner: inner, log: zerolog.Nop()}
}

// WithLogger sets the composite's logger and returns the composite.
func (c *CompositeDaemon) WithLogger(log zerolog.Logger) *CompositeDaemon {
	c.log = log.With().Str("daemon", c.name).Logger()
	return c
}

// Name returns the composite's name.
func (c *CompositeDaemon) Name() string { return c.name }

// Status returns the composite's lifecycle state.
func (c *CompositeDaemon) Status() DaemonStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start starts each inner daemon in order, rolling back on failure.
func (c *CompositeDaemon) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != DaemonStopped {
		return fmt.Errorf("magik: daemon %q: cannot start from state %s", c.name, c.status)
	}

	for i, d := range c.inner {
		err := d.Start(ctx)
		if err == nil {
			continue
		}

		// Reverse-order rollback of everything already running. The
		// original failure stays primary; rollback errors ride along.
		var rolledBack []string
		var rollbackErr error
		for j := i - 1; j >= 0; j-- {
			rolledBack = append(rolledBack, daemonName(c.inner[j]))
			if sdErr := c.inner[j].Shutdown(ctx); sdErr != nil {
				rollbackErr = errors.Join(rollbackErr, sdErr)
			}
		}
		c.log.Error().Err(err).Str("failed", daemonName(d)).Strs("rolled_back", rolledBack).Msg("composite start failed")
		return &DaemonStartError{
			Composite:   c.name,
			Failed:      daemonName(d),
			RolledBack:  rolledBack,
			Cause:       err,
			RollbackErr: rollbackErr,
		}
	}

	c.status = DaemonRunning
	c.log.Debug().Int("daemons", len(c.inner)).Msg("composite started")
	return nil
}

// Shutdown stops the inner daemons in reverse start order. Daemons already
// Completed are tolerated; Shutdown is idempotent.
func (c *CompositeDaemon) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == DaemonCompleted {
		return nil
	}

	var errs error
	for i := len(c.inner) - 1; i >= 0; i-- {
		if err := c.inner[i].Shutdown(ctx); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	c.status = DaemonCompleted
	c.log.Debug().Msg("composite completed")
	return errs
}
