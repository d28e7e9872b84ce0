package magik

import (
	"context"
	"iter"
	"sync"
)

// JournalEntry pairs an entry with its position. Positions start at 1 and
// are gap-free.
type JournalEntry[E any] struct {
	Position uint64
	Value    E
}

// Journal is an append-only, position-addressed, in-memory log with live
// tailing. Position assignment and append are one atomic unit under a
// single critical section; everything else (wake-up, draining) stays
// outside it so writers never serialize readers.
//
// The wake signal is level-triggered and coalescing: any number of writes
// while a tailer is busy draining collapse into one wake-up, and a tailer
// always re-checks the log before sleeping, so no write is ever missed.
type Journal[E any] struct {
	mu      sync.Mutex
	entries []E
	wake    chan struct{}
}

// NewJournal creates an empty journal.
func NewJournal[E any]() *Journal[E] {
	return &Journal[E]{wake: make(chan struct{})}
}

// Write appends an entry and returns its position.
func (j *Journal[E]) Write(ctx context.Context, v E) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	j.mu.Lock()
	j.entries = append(j.entries, v)
	pos := uint64(len(j.entries))
	wake := j.wake
	j.wake = make(chan struct{})
	j.mu.Unlock()

	close(wake)
	return pos, nil
}

// Len returns the number of entries written so far.
func (j *Journal[E]) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return uint64(len(j.entries))
}

// Tail yields every entry at a position strictly greater than after, in
// position order, blocking when caught up and resuming on new writes. The
// sequence is unbounded; it ends only when the context is cancelled or the
// consumer stops ranging. Restart from any position by calling Tail again.
func (j *Journal[E]) Tail(ctx context.Context, after uint64) iter.Seq2[uint64, E] {
	return func(yield func(uint64, E) bool) {
		next := after + 1
		for {
			if ctx.Err() != nil {
				return
			}

			j.mu.Lock()
			if next <= uint64(len(j.entries)) {
				batch := make([]E, uint64(len(j.entries))-next+1)
				copy(batch, j.entries[next-1:])
				j.mu.Unlock()

				for i, e := range batch {
					if !yield(next+uint64(i), e) {
						return
					}
				}
				next += uint64(len(batch))
				continue
			}
			wake := j.wake
			j.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}
}

// ReadBackward returns a point-in-time snapshot of the entries at positions
// strictly below before, in descending position order. A before of zero
// means from the current head.
func (j *Journal[E]) ReadBackward(ctx context.Context, before uint64) ([]JournalEntry[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.Lock()
	n := uint64(len(j.entries))
	if before == 0 || before > n+1 {
		before = n + 1
	}
	snapshot := make([]E, before-1)
	copy(snapshot, j.entries[:before-1])
	j.mu.Unlock()

	out := make([]JournalEntry[E], 0, len(snapshot))
	for i := len(snapshot) - 1; i >= 0; i-- {
		out = append(out, JournalEntry[E]{Position: uint64(i) + 1, Value: snapshot[i]})
	}
	return out, nil
}

// WaitFor returns the first entry at or after a position that matches the
// predicate. A nil predicate matches everything.
func (j *Journal[E]) WaitFor(ctx context.Context, at uint64, pred func(E) bool) (JournalEntry[E], error) {
	var zero JournalEntry[E]
	after := at
	if after > 0 {
		after--
	}
	for pos, e := range j.Tail(ctx, after) {
		if pred == nil || pred(e) {
			return JournalEntry[E]{Position: pos, Value: e}, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, context.Canceled
}

// WaitForType returns the first entry at or after a position whose dynamic
// type is S and that matches the predicate. It is the typed variant of
// Journal.WaitFor for journals of interface-typed entries.
func WaitForType[S any, E any](ctx context.Context, j *Journal[E], at uint64, pred func(S) bool) (uint64, S, error) {
	var zero S
	after := at
	if after > 0 {
		after--
	}
	for pos, e := range j.Tail(ctx, after) {
		typed, ok := any(e).(S)
		if !ok {
			continue
		}
		if pred == nil || pred(typed) {
			return pos, typed, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, zero, err
	}
	return 0, zero, context.Canceled
}
