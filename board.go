package magik

import (
	"context"
	"reflect"
	"sort"
	"sync"
)

// Board is the execution façade. Push mode runs a precompiled chain from
// the input's runtime type to the requested output type; pull mode advances
// one selected block per call. A board is immutable after Build and safe
// for concurrent use.
type Board struct {
	reg      *registry
	compiler *chainCompiler
	exts     []Extension
	branches sync.Map // branch id -> []string
}

// Build compiles the registrations into a Board. Every reachable
// (start, target) type pair is prewarmed so push mode never compiles during
// execution. Configuration errors surface here, not at first use.
func (b *BoardBuilder) Build() (*Board, error) {
	reg, err := buildRegistry(b.descs)
	if err != nil {
		return nil, err
	}

	board := &Board{
		reg:      reg,
		compiler: newChainCompiler(reg),
		exts:     append([]Extension(nil), b.exts...),
	}
	sort.SliceStable(board.exts, func(i, j int) bool {
		return board.exts[i].Order() < board.exts[j].Order()
	})

	for _, ext := range board.exts {
		if err := ext.Init(board); err != nil {
			return nil, err
		}
	}

	board.compiler.prewarm()
	return board, nil
}

// Dispose tears down the board's extensions.
func (b *Board) Dispose() error {
	for _, ext := range b.exts {
		if err := ext.Dispose(b); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the registered blocks in registration order.
func (b *Board) Registry() []BlockInfo {
	out := make([]BlockInfo, 0, len(b.reg.blocks))
	for _, rb := range b.reg.blocks {
		out = append(out, rb.info())
	}
	return out
}

// WorkSupported is the admission check for a prospective invocation. It is
// currently permissive.
func WorkSupported[TIn any](_ *Board, _ ...string) bool {
	return true
}

// PostWork runs the precompiled chain from the input's runtime type to TOut
// inside a fresh ritual seeded with the given tags. Every block of the
// chain executes; intermediate values assignable to TOut do not
// short-circuit. The ritual's scope is closed on every exit path.
func PostWork[TIn, TOut any](ctx context.Context, b *Board, input TIn, tags ...string) (result TOut, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	start := valueType(input)
	target := reflect.TypeFor[TOut]()

	ritual := newRitual(tags...)
	ctx = withRitual(ctx, ritual)

	defer func() {
		for i := len(b.exts) - 1; i >= 0; i-- {
			if extErr := b.exts[i].OnRitualEnd(ctx, ritual, result, err); extErr != nil && err == nil {
				err = extErr
			}
		}
	}()

	for _, ext := range b.exts {
		if err = ext.OnRitualStart(ctx, ritual); err != nil {
			return result, err
		}
	}

	chain, chainErr := b.compiler.chainFor(start, target)
	if chainErr != nil {
		err = chainErr
		return result, err
	}

	out, runErr := chain.run(ctx, input, func(ctx context.Context, rb *registeredBlock, hop int, in any) (any, error) {
		step := &StepInfo{
			Ritual: ritual,
			Block:  rb.info(),
			Hop:    hop,
			Mode:   ModePush,
			Input:  rb.in,
		}
		return b.invokeStep(ctx, step, rb, in)
	})
	if runErr != nil {
		err = runErr
		return result, err
	}

	result, err = SafeTypeAssertion[TOut](out)
	return result, err
}

// invokeStep runs one block with extension middleware around it. Block
// failures propagate unchanged to the caller.
func (b *Board) invokeStep(ctx context.Context, step *StepInfo, rb *registeredBlock, in any) (any, error) {
	next := func() (any, error) {
		return rb.invoke(ctx, in)
	}
	// Last registered wraps first, like every middleware chain here.
	for i := len(b.exts) - 1; i >= 0; i-- {
		ext := b.exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.WrapStep(ctx, currentNext, step)
		}
	}

	out, err := next()
	if err != nil {
		for _, ext := range b.exts {
			ext.OnError(err, step)
		}
		return nil, err
	}
	return out, nil
}
