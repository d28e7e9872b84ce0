package magik

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpDaemonLifecycle(t *testing.T) {
	src := NewJournal[int]()
	sum := make(chan int, 16)
	d := NewPumpDaemon("adder", src, func(ctx context.Context, pos uint64, v int) error {
		sum <- v
		return nil
	})
	assert.Equal(t, DaemonStopped, d.Status())

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	assert.Equal(t, DaemonRunning, d.Status())

	// Running daemons refuse a second start.
	require.Error(t, d.Start(ctx))

	_, _ = src.Write(ctx, 7)
	_, _ = src.Write(ctx, 8)
	assert.Equal(t, 7, recvTimeout(t, sum))
	assert.Equal(t, 8, recvTimeout(t, sum))

	require.NoError(t, d.Shutdown(ctx))
	assert.Equal(t, DaemonCompleted, d.Status())
}

func TestPumpDaemonShutdownIdempotent(t *testing.T) {
	src := NewJournal[int]()
	d := NewPumpDaemon("noop", src, func(ctx context.Context, pos uint64, v int) error {
		return nil
	})
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Shutdown(ctx))
	require.NoError(t, d.Shutdown(ctx))
	assert.Equal(t, DaemonCompleted, d.Status())

	// Completed is terminal.
	require.Error(t, d.Start(ctx))
}

func TestPumpDaemonShutdownWithoutStart(t *testing.T) {
	src := NewJournal[int]()
	d := NewPumpDaemon("never-started", src, func(ctx context.Context, pos uint64, v int) error {
		return nil
	})

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, DaemonCompleted, d.Status())
}

func TestPumpDaemonHandlerErrorsAreSkipped(t *testing.T) {
	src := NewJournal[int]()
	got := make(chan int, 16)
	d := NewPumpDaemon("flaky", src, func(ctx context.Context, pos uint64, v int) error {
		if v < 0 {
			return errors.New("bad entry")
		}
		got <- v
		return nil
	})
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	defer d.Shutdown(ctx)

	_, _ = src.Write(ctx, 1)
	_, _ = src.Write(ctx, -1)
	_, _ = src.Write(ctx, 2)

	assert.Equal(t, 1, recvTimeout(t, got))
	// The failed entry is skipped, not retried; the pump keeps going.
	assert.Equal(t, 2, recvTimeout(t, got))
}

func TestPumpDaemonResume(t *testing.T) {
	src := NewJournal[int]()
	ctx := context.Background()
	_, _ = src.Write(ctx, 1)
	_, _ = src.Write(ctx, 2)
	_, _ = src.Write(ctx, 3)

	got := make(chan int, 16)
	d := NewPumpDaemon("resumer", src, func(ctx context.Context, pos uint64, v int) error {
		got <- v
		return nil
	}, WithPumpResume(2))
	require.NoError(t, d.Start(ctx))
	defer d.Shutdown(ctx)

	assert.Equal(t, 3, recvTimeout(t, got))
}

func TestTransformPump(t *testing.T) {
	src := NewJournal[int]()
	dst := NewJournal[string]()
	ctx := context.Background()

	d := NewTransformPump("stringify", src, dst, func(ctx context.Context, v int) (string, error) {
		return string(rune('a' + v)), nil
	})
	require.NoError(t, d.Start(ctx))
	defer d.Shutdown(ctx)

	_, _ = src.Write(ctx, 0)
	_, _ = src.Write(ctx, 1)

	entry, err := dst.WaitFor(ctx, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", entry.Value)
	backward, err := dst.ReadBackward(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []JournalEntry[string]{
		{Position: 2, Value: "b"},
		{Position: 1, Value: "a"},
	}, backward)
}

// failingDaemon fails to start after recording the attempt.
type failingDaemon struct {
	err    error
	status DaemonStatus
}

func (d *failingDaemon) Start(ctx context.Context) error    { return d.err }
func (d *failingDaemon) Shutdown(ctx context.Context) error { d.status = DaemonCompleted; return nil }
func (d *failingDaemon) Status() DaemonStatus               { return d.status }
func (d *failingDaemon) Name() string                       { return "failing" }

func TestCompositeDaemonStartAndShutdown(t *testing.T) {
	srcA := NewJournal[int]()
	srcB := NewJournal[int]()
	a := NewPumpDaemon("a", srcA, func(ctx context.Context, pos uint64, v int) error { return nil })
	b := NewPumpDaemon("b", srcB, func(ctx context.Context, pos uint64, v int) error { return nil })

	c := NewCompositeDaemon("pair", a, b)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, DaemonRunning, c.Status())
	assert.Equal(t, DaemonRunning, a.Status())
	assert.Equal(t, DaemonRunning, b.Status())

	require.NoError(t, c.Shutdown(ctx))
	assert.Equal(t, DaemonCompleted, c.Status())
	assert.Equal(t, DaemonCompleted, a.Status())
	assert.Equal(t, DaemonCompleted, b.Status())

	require.NoError(t, c.Shutdown(ctx))
}

func TestCompositeDaemonRollsBackOnPartialStart(t *testing.T) {
	src := NewJournal[int]()
	first := NewPumpDaemon("first", src, func(ctx context.Context, pos uint64, v int) error { return nil })
	sentinel := errors.New("port in use")
	second := &failingDaemon{err: sentinel}
	third := NewPumpDaemon("third", src, func(ctx context.Context, pos uint64, v int) error { return nil })

	c := NewCompositeDaemon("trio", first, second, third)
	err := c.Start(context.Background())

	var startErr *DaemonStartError
	require.ErrorAs(t, err, &startErr)
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, "trio", startErr.Composite)
	assert.Equal(t, "failing", startErr.Failed)
	assert.Equal(t, []string{"first"}, startErr.RolledBack)
	assert.NoError(t, startErr.RollbackErr)

	// The started daemon was rolled back; the never-reached one untouched;
	// the composite never became Running.
	assert.Equal(t, DaemonCompleted, first.Status())
	assert.Equal(t, DaemonStopped, third.Status())
	assert.Equal(t, DaemonStopped, c.Status())
}

func TestPumpDaemonRateLimited(t *testing.T) {
	src := NewJournal[int]()
	got := make(chan time.Time, 16)
	d := NewPumpDaemon("slow", src, func(ctx context.Context, pos uint64, v int) error {
		got <- time.Now()
		return nil
	}, WithPumpRate(50, 1))
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	defer d.Shutdown(ctx)

	_, _ = src.Write(ctx, 1)
	_, _ = src.Write(ctx, 2)

	first := recvTimeout(t, got)
	second := recvTimeout(t, got)
	// At 50/s the second delivery waits roughly 20ms for a token.
	assert.GreaterOrEqual(t, second.Sub(first), 10*time.Millisecond)
}
