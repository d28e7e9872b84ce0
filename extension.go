package magik

import (
	"context"
	"reflect"
)

// StepInfo describes one block invocation as seen by extensions.
type StepInfo struct {
	Ritual *Ritual
	Block  BlockInfo
	Hop    int
	Mode   ExecutionMode
	Input  reflect.Type
}

// ExecutionMode distinguishes the two execution disciplines.
type ExecutionMode string

const (
	// ModePush is eager execution over a precompiled chain.
	ModePush ExecutionMode = "push"
	// ModePull is incremental execution, one block per external call.
	ModePull ExecutionMode = "pull"
)

// Extension provides hooks into the board's execution lifecycle
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a board
	Init(b *Board) error

	// WrapStep intercepts a single block invocation
	WrapStep(ctx context.Context, next func() (any, error), step *StepInfo) (any, error)

	// OnRitualStart is called when a top-level invocation opens its ritual
	OnRitualStart(ctx context.Context, r *Ritual) error

	// OnRitualEnd is called on every exit path of a top-level invocation
	OnRitualEnd(ctx context.Context, r *Ritual, result any, err error) error

	// OnError handles a failed block invocation
	OnError(err error, step *StepInfo)

	// Dispose is called when the board is disposed
	Dispose(b *Board) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(b *Board) error {
	return nil
}

func (e *BaseExtension) WrapStep(ctx context.Context, next func() (any, error), step *StepInfo) (any, error) {
	return next()
}

func (e *BaseExtension) OnRitualStart(ctx context.Context, r *Ritual) error {
	return nil
}

func (e *BaseExtension) OnRitualEnd(ctx context.Context, r *Ritual, result any, err error) error {
	return nil
}

func (e *BaseExtension) OnError(err error, step *StepInfo) {
}

func (e *BaseExtension) Dispose(b *Board) error {
	return nil
}
