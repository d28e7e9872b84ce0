package magik

import (
	"context"
	"reflect"
	"sync"
)

type chainKey struct {
	start  reflect.Type
	target reflect.Type
}

// compiledChain is a fixed block sequence whose types chain from start to a
// type assignable to target. A chain with no steps is the identity mapping.
type compiledChain struct {
	start  reflect.Type
	target reflect.Type
	steps  []*registeredBlock
}

// stepInvoker runs one block of a chain. The board supplies it so that
// extension middleware wraps every hop.
type stepInvoker func(ctx context.Context, rb *registeredBlock, hop int, in any) (any, error)

// run executes every step in order. There is no short-circuit on
// assignability: declared types decided the chain at compile time, and each
// remaining block executes even if an intermediate value would already
// satisfy the target.
func (c *compiledChain) run(ctx context.Context, in any, invoke stepInvoker) (any, error) {
	cur := in
	for hop, rb := range c.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if scope, ok := TagsFrom(ctx); ok {
			scope.fence()
		}
		out, err := invoke(ctx, rb, hop, cur)
		if err != nil {
			return nil, err
		}
		cur = out
	}
	return cur, nil
}

// chainCompiler turns the registry into compiled chains, cached per
// (start, target) pair. Prewarming at build time compiles every reachable
// pair so eager execution never compiles lazily.
type chainCompiler struct {
	reg   *registry
	cache sync.Map // chainKey -> *compiledChain
}

func newChainCompiler(reg *registry) *chainCompiler {
	return &chainCompiler{reg: reg}
}

// chainFor returns the cached chain for the pair, compiling on a miss.
func (c *chainCompiler) chainFor(start, target reflect.Type) (*compiledChain, error) {
	key := chainKey{start: start, target: target}
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*compiledChain), nil
	}
	chain, err := c.compile(start, target)
	if err != nil {
		return nil, err
	}
	c.cache.Store(key, chain)
	return chain, nil
}

// compile searches the type graph breadth-first. Registered blocks are the
// edges; neighbor order at every node is registration order, which makes
// the search deterministic and gives the earliest-registered candidate the
// win at every tie.
func (c *chainCompiler) compile(start, target reflect.Type) (*compiledChain, error) {
	if assignable(start, target) {
		return &compiledChain{start: start, target: target}, nil
	}

	type node struct {
		t    reflect.Type
		path []*registeredBlock
	}

	visited := map[reflect.Type]bool{start: true}
	queue := []node{{t: start}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, rb := range c.reg.blocks {
			if !assignable(cur.t, rb.in) {
				continue
			}
			path := make([]*registeredBlock, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, rb)

			if assignable(rb.out, target) {
				return &compiledChain{start: start, target: target, steps: path}, nil
			}
			if !visited[rb.out] {
				visited[rb.out] = true
				queue = append(queue, node{t: rb.out, path: path})
			}
		}
	}

	return nil, &NoPathError{Start: start, Target: target}
}

// pathExists is the existence-only variant of compile, used to enumerate
// reachable pairs for prewarming.
func (c *chainCompiler) pathExists(start, target reflect.Type) bool {
	if assignable(start, target) {
		return true
	}
	visited := map[reflect.Type]bool{start: true}
	queue := []reflect.Type{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, rb := range c.reg.blocks {
			if !assignable(cur, rb.in) {
				continue
			}
			if assignable(rb.out, target) {
				return true
			}
			if !visited[rb.out] {
				visited[rb.out] = true
				queue = append(queue, rb.out)
			}
		}
	}
	return false
}

// prewarm compiles a chain for every connected pair of registered types.
func (c *chainCompiler) prewarm() {
	var types []reflect.Type
	seen := map[reflect.Type]bool{}
	for _, rb := range c.reg.blocks {
		for _, t := range []reflect.Type{rb.in, rb.out} {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	for _, s := range types {
		for _, t := range types {
			if c.pathExists(s, t) {
				_, _ = c.chainFor(s, t)
			}
		}
	}
}
