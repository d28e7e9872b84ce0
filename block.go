package magik

import (
	"context"
	"fmt"
	"reflect"
)

// Block is a typed unit of work. Implementations may suspend in DoMagik;
// cancellation arrives through the context, and the active ritual's tag
// scope is reachable via Tags(ctx).
type Block[TIn, TOut any] interface {
	DoMagik(ctx context.Context, in TIn) (TOut, error)
}

// BlockFunc adapts a plain function to the Block contract.
type BlockFunc[TIn, TOut any] func(ctx context.Context, in TIn) (TOut, error)

func (f BlockFunc[TIn, TOut]) DoMagik(ctx context.Context, in TIn) (TOut, error) {
	return f(ctx, in)
}

// Capable is optionally implemented by blocks that declare capability
// labels on the type itself. Labels are read once at registration and
// merged into the block's capability set.
type Capable interface {
	Caps() []string
}

// blockDescriptor is the immutable registration record of one block.
type blockDescriptor struct {
	in     reflect.Type
	out    reflect.Type
	name   string
	caps   []string
	invoke func(ctx context.Context, rb *registeredBlock, in any) (any, error)
}

// BlockOption configures a block at registration time.
type BlockOption func(*blockDescriptor)

// WithCaps declares capability labels for a block.
func WithCaps(labels ...string) BlockOption {
	return func(d *blockDescriptor) {
		d.caps = append(d.caps, labels...)
	}
}

// WithName overrides the block's self label, which otherwise derives from
// the implementing type's name.
func WithName(name string) BlockOption {
	return func(d *blockDescriptor) {
		d.name = name
	}
}

// BoardBuilder accumulates block registrations and extensions, then
// compiles them into an immutable Board.
type BoardBuilder struct {
	descs []*blockDescriptor
	exts  []Extension
}

// NewBoardBuilder creates an empty builder.
func NewBoardBuilder() *BoardBuilder {
	return &BoardBuilder{}
}

// Use registers an extension on the board under construction.
func (b *BoardBuilder) Use(ext Extension) *BoardBuilder {
	b.exts = append(b.exts, ext)
	return b
}

// Register adds a block instance. Registration order is significant: it is
// the tie-break at every routing decision.
func Register[TIn, TOut any](b *BoardBuilder, blk Block[TIn, TOut], opts ...BlockOption) {
	d := &blockDescriptor{
		in:   reflect.TypeFor[TIn](),
		out:  reflect.TypeFor[TOut](),
		name: selfLabel(blk),
		invoke: func(ctx context.Context, _ *registeredBlock, in any) (any, error) {
			typed, err := SafeTypeAssertion[TIn](in)
			if err != nil {
				return nil, err
			}
			return blk.DoMagik(ctx, typed)
		},
	}
	if c, ok := any(blk).(Capable); ok {
		d.caps = append(d.caps, c.Caps()...)
	}
	for _, opt := range opts {
		opt(d)
	}
	b.descs = append(b.descs, d)
}

// RegisterFunc adds a function block. Function blocks have no meaningful
// type name; give them one with WithName if they should be addressable by
// override tags.
func RegisterFunc[TIn, TOut any](b *BoardBuilder, fn func(ctx context.Context, in TIn) (TOut, error), opts ...BlockOption) {
	Register[TIn, TOut](b, BlockFunc[TIn, TOut](fn), opts...)
}

// RegisterActivator adds a block that is instantiated per invocation. The
// activator runs inside the invoking ritual; its failure surfaces as a
// BlockResolveError naming the registry entry.
func RegisterActivator[TIn, TOut any](b *BoardBuilder, activate func(ctx context.Context) (Block[TIn, TOut], error), opts ...BlockOption) {
	d := &blockDescriptor{
		in:   reflect.TypeFor[TIn](),
		out:  reflect.TypeFor[TOut](),
		name: typeLabel(reflect.TypeFor[TOut]()) + "Activator",
		invoke: func(ctx context.Context, rb *registeredBlock, in any) (any, error) {
			blk, err := activate(ctx)
			if err != nil {
				return nil, newBlockResolveError(rb, err)
			}
			typed, err := SafeTypeAssertion[TIn](in)
			if err != nil {
				return nil, err
			}
			return blk.DoMagik(ctx, typed)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	b.descs = append(b.descs, d)
}

// selfLabel derives a block's default name from its implementing type.
func selfLabel(blk any) string {
	t := reflect.TypeOf(blk)
	if t == nil {
		return ""
	}
	return typeLabel(t)
}

func typeLabel(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("%v", t)
}
