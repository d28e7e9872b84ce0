package magik

import (
	"context"

	"github.com/google/uuid"
)

// Ritual is the execution-scoped state of one logical top-level invocation.
// It carries the tag scope as explicit state so that it flows with the
// invocation across suspension points instead of sticking to a goroutine.
type Ritual struct {
	id    string
	scope *TagScope
}

func newRitual(seed ...string) *Ritual {
	return &Ritual{
		id:    "ritual-" + uuid.NewString(),
		scope: newTagScope(seed...),
	}
}

// ID returns the ritual's unique identifier.
func (r *Ritual) ID() string { return r.id }

// Scope returns the ritual's tag scope.
func (r *Ritual) Scope() *TagScope { return r.scope }

type ritualKey struct{}

func withRitual(ctx context.Context, r *Ritual) context.Context {
	return context.WithValue(ctx, ritualKey{}, r)
}

// RitualFrom retrieves the active ritual from a context, if any.
func RitualFrom(ctx context.Context) (*Ritual, bool) {
	r, ok := ctx.Value(ritualKey{}).(*Ritual)
	return r, ok
}

// Tags returns the active ritual's tag scope. Calling it outside an active
// ritual is a programming error and panics; use TagsFrom for the
// non-panicking form.
func Tags(ctx context.Context) *TagScope {
	r, ok := RitualFrom(ctx)
	if !ok {
		panic(ErrNoTagScope)
	}
	return r.scope
}

// TagsFrom returns the active ritual's tag scope, or false when no ritual
// is active.
func TagsFrom(ctx context.Context) (*TagScope, bool) {
	r, ok := RitualFrom(ctx)
	if !ok {
		return nil, false
	}
	return r.scope, true
}
