package magik

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
)

// registeredBlock is a block descriptor enriched at build time. It is never
// mutated after the board is built.
type registeredBlock struct {
	index       int
	name        string
	in          reflect.Type
	out         reflect.Type
	caps        map[string]struct{}
	capList     []string
	forwardNext []string
	invoke      func(ctx context.Context, in any) (any, error)
}

// BlockInfo is the read-only view of a registered block.
type BlockInfo struct {
	Index  int
	Name   string
	Input  reflect.Type
	Output reflect.Type
	Caps   []string
}

func (rb *registeredBlock) info() BlockInfo {
	return BlockInfo{
		Index:  rb.index,
		Name:   rb.name,
		Input:  rb.in,
		Output: rb.out,
		Caps:   append([]string(nil), rb.capList...),
	}
}

type registry struct {
	blocks []*registeredBlock
	byName map[string]*registeredBlock
}

func buildRegistry(descs []*blockDescriptor) (*registry, error) {
	r := &registry{byName: make(map[string]*registeredBlock, len(descs))}

	for i, d := range descs {
		if d.in == nil || d.out == nil {
			return nil, fmt.Errorf("magik: block at index %d has no declared types", i)
		}
		name := d.name
		if name == "" {
			name = "block" + strconv.Itoa(i)
		}
		if _, taken := r.byName[name]; taken {
			name = name + "#" + strconv.Itoa(i)
		}

		rb := &registeredBlock{
			index: i,
			name:  name,
			in:    d.in,
			out:   d.out,
			caps:  make(map[string]struct{}),
		}
		// Merged capability set: declared labels plus the self label and the
		// block's own forward label.
		for _, c := range append(append([]string(nil), d.caps...), name, ForwardTag(name)) {
			if _, dup := rb.caps[c]; dup {
				continue
			}
			rb.caps[c] = struct{}{}
			rb.capList = append(rb.capList, c)
		}

		inner := d.invoke
		rb.invoke = func(ctx context.Context, in any) (any, error) {
			return inner(ctx, rb, in)
		}

		r.blocks = append(r.blocks, rb)
		r.byName[name] = rb
	}

	// Forward-next hints: for each block, the forward labels of every
	// later-registered block whose input type accepts this block's output.
	for _, rb := range r.blocks {
		for _, later := range r.blocks[rb.index+1:] {
			if assignable(rb.out, later.in) {
				rb.forwardNext = append(rb.forwardNext, ForwardTag(later.name))
			}
		}
	}

	return r, nil
}

// candidates returns, in registration order, every block whose input type
// accepts the given value type.
func (r *registry) candidates(t reflect.Type) []*registeredBlock {
	var out []*registeredBlock
	for _, rb := range r.blocks {
		if assignable(t, rb.in) {
			out = append(out, rb)
		}
	}
	return out
}

// resolve finds a block by name or by stable registry index.
func (r *registry) resolve(ref string) (*registeredBlock, bool) {
	if rb, ok := r.byName[ref]; ok {
		return rb, true
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 0 && i < len(r.blocks) {
		return r.blocks[i], true
	}
	return nil, false
}

func assignable(from, to reflect.Type) bool {
	if from == nil || to == nil {
		return false
	}
	return from.AssignableTo(to)
}

// valueType reports the runtime type of a value, falling back to the static
// type when the value is a typed nil or untyped nil interface.
func valueType[T any](v T) reflect.Type {
	if t := reflect.TypeOf(v); t != nil {
		return t
	}
	return reflect.TypeFor[T]()
}
