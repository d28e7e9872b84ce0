// Package magik is a runtime for composing independently-authored, typed
// processing units ("blocks") into pipelines whose routing is decided
// dynamically, per invocation, instead of wired statically.
//
// # Overview
//
// Magik organizes code around three core concepts:
//
//  1. Blocks: typed units of work with declared input/output types and
//     optional capability labels
//  2. Boards: immutable registries that compile, cache, and execute block
//     chains in two disciplines (push and pull)
//  3. Tags: string labels, stacked per execution, that steer routing
//
// # Basic Usage
//
// Register blocks on a builder and build a board:
//
//	b := magik.NewBoardBuilder()
//	magik.RegisterFunc(b, func(ctx context.Context, s string) (int, error) {
//	    return len(s), nil
//	}, magik.WithName("Length"), magik.WithCaps("fast"))
//	magik.RegisterFunc(b, func(ctx context.Context, n int) (float64, error) {
//	    return float64(n), nil
//	}, magik.WithName("Widen"))
//
//	board, err := b.Build()
//
// Push mode compiles a fixed chain from the input's type to the requested
// output type at build time and runs it eagerly:
//
//	score, err := magik.PostWork[string, float64](ctx, board, "abcd")
//
// Pull mode advances one block per call, re-selecting the next block each
// time from type compatibility, capability overlap, and override tags:
//
//	err := magik.GetWork(ctx, board, magik.WorkRequest[string]{
//	    Input:    "abcd",
//	    BranchID: "branch-1",
//	    Tags:     []string{"fast"},
//	}, sink)
//
// Blocks read and write the ambient tag scope through their context:
//
//	func (blk *Router) DoMagik(ctx context.Context, in Doc) (Doc, error) {
//	    magik.Tags(ctx).Add("reviewed")
//	    return in, nil
//	}
//
// # Journals and Daemons
//
// A Journal is an append-only, position-addressed, in-process log with live
// tailing, backward scans, and predicate waits:
//
//	j := magik.NewJournal[Event]()
//	pos, _ := j.Write(ctx, Event{...})
//	for pos, e := range j.Tail(ctx, 0) { ... }
//
// Daemons pump entries between journals in the background; a
// CompositeDaemon starts and stops a group of pumps atomically, rolling
// back partial starts.
package magik
