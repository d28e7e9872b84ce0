package magik

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// WorkRequest describes one pull-mode step: the current value, optional
// extra tags merged into the branch's persisted tag state, and the branch
// identifier. An empty BranchID gets a fresh branch per call.
type WorkRequest[TIn any] struct {
	Input    TIn
	Tags     []string
	BranchID string
}

// StepResult reports one completed pull-mode step. OutputType is the
// executed block's declared output type, not the runtime type of Output.
type StepResult struct {
	Branch     string
	Block      BlockInfo
	Output     any
	OutputType reflect.Type
	Emitted    []string
}

// PipelineResult reports pull-mode termination.
type PipelineResult struct {
	Branch     string
	Output     any
	OutputType reflect.Type
	Steps      int
}

// WorkSink receives pull-mode results.
type WorkSink interface {
	StepComplete(StepResult)
	PipelineComplete(PipelineResult)
}

// GetWork advances one pull-mode step: merge tags, select a block, run it,
// finalize the branch's tag state, report through the sink.
func GetWork[TIn any](ctx context.Context, b *Board, req WorkRequest[TIn], sink WorkSink) error {
	branch := req.BranchID
	if branch == "" {
		branch = uuid.NewString()
	}
	_, err := b.pullStep(ctx, branch, req.Input, req.Tags, sink)
	return err
}

// pullStep is the single-step primitive shared by GetWork and PullWork.
func (b *Board) pullStep(ctx context.Context, branch string, input any, extra []string, sink WorkSink) (res *StepResult, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	seed := append(b.BranchTags(branch), extra...)
	ritual := newRitual(seed...)
	scope := ritual.scope
	// Fence so that everything the block emits lands in a fresh epoch,
	// separated from the inherited branch state.
	scope.fence()
	ctx = withRitual(ctx, ritual)

	defer func() {
		var result any
		if res != nil {
			result = res.Output
		}
		for i := len(b.exts) - 1; i >= 0; i-- {
			if extErr := b.exts[i].OnRitualEnd(ctx, ritual, result, err); extErr != nil && err == nil {
				err = extErr
			}
		}
	}()

	for _, ext := range b.exts {
		if err = ext.OnRitualStart(ctx, ritual); err != nil {
			return nil, err
		}
	}

	valType := reflect.TypeOf(input)
	rb, selErr := b.reg.selectNext(valType, scope)
	if selErr != nil {
		err = selErr
		return nil, err
	}

	step := &StepInfo{
		Ritual: ritual,
		Block:  rb.info(),
		Mode:   ModePull,
		Input:  rb.in,
	}
	out, invErr := b.invokeStep(ctx, step, rb, input)
	if invErr != nil {
		err = invErr
		return nil, err
	}

	// Finalize: the branch's persisted state becomes exactly this step's
	// emissions plus fresh provenance and forward hints. Hints inherited
	// from the previous step live in an older epoch and drop out here.
	emitted := scope.CurrentEpoch()
	state := appendUnique(append([]string(nil), emitted...), ProvenanceTag(rb.name))
	for _, hint := range rb.forwardNext {
		state = appendUnique(state, hint)
	}
	b.branches.Store(branch, state)

	res = &StepResult{
		Branch:     branch,
		Block:      rb.info(),
		Output:     out,
		OutputType: rb.out,
		Emitted:    emitted,
	}
	if sink != nil {
		sink.StepComplete(*res)
	}
	return res, nil
}

// BranchTags returns a copy of a branch's persisted tag state.
func (b *Board) BranchTags(branch string) []string {
	v, ok := b.branches.Load(branch)
	if !ok {
		return nil
	}
	return append([]string(nil), v.([]string)...)
}

// ResetBranch discards a branch's persisted tag state.
func (b *Board) ResetBranch(branch string) {
	b.branches.Delete(branch)
}

type pullConfig struct {
	shouldComplete func(declared reflect.Type) bool
	maxSteps       int
	sink           WorkSink
}

// PullOption configures the pull-mode orchestrator.
type PullOption func(*pullConfig)

// WithShouldComplete installs the completion policy. The predicate sees the
// declared output type of the latest step once that type is assignable to
// the requested final type; returning false keeps stepping. Without a
// predicate the pipeline completes on first assignability, including the
// zero-step case where the initial input already satisfies the final type.
func WithShouldComplete(pred func(declared reflect.Type) bool) PullOption {
	return func(cfg *pullConfig) {
		cfg.shouldComplete = pred
	}
}

// WithMaxSteps bounds the number of steps before the orchestrator gives up.
// Zero means unbounded.
func WithMaxSteps(n int) PullOption {
	return func(cfg *pullConfig) {
		cfg.maxSteps = n
	}
}

// WithSink forwards step and pipeline callbacks during orchestration.
func WithSink(sink WorkSink) PullOption {
	return func(cfg *pullConfig) {
		cfg.sink = sink
	}
}

// PullWork repeatedly applies the single-step primitive until the declared
// output type is assignable to TOut and the completion policy agrees.
// Declared types drive the decision; runtime types never do.
func PullWork[TIn, TOut any](ctx context.Context, b *Board, req WorkRequest[TIn], opts ...PullOption) (TOut, error) {
	var zero TOut
	cfg := &pullConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	branch := req.BranchID
	if branch == "" {
		branch = uuid.NewString()
	}
	target := reflect.TypeFor[TOut]()
	done := func(declared reflect.Type) bool {
		return assignable(declared, target) && (cfg.shouldComplete == nil || cfg.shouldComplete(declared))
	}

	var cur any = req.Input
	declared := reflect.TypeFor[TIn]()
	extra := req.Tags
	steps := 0

	for {
		if done(declared) {
			out, err := SafeTypeAssertion[TOut](cur)
			if err != nil {
				return zero, err
			}
			if cfg.sink != nil {
				cfg.sink.PipelineComplete(PipelineResult{
					Branch:     branch,
					Output:     cur,
					OutputType: declared,
					Steps:      steps,
				})
			}
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if cfg.maxSteps > 0 && steps >= cfg.maxSteps {
			return zero, fmt.Errorf("magik: branch %q did not complete within %d steps", branch, cfg.maxSteps)
		}

		res, err := b.pullStep(ctx, branch, cur, extra, cfg.sink)
		if err != nil {
			return zero, err
		}
		extra = nil
		cur = res.Output
		declared = res.OutputType
		steps++
	}
}

func appendUnique(labels []string, l string) []string {
	for _, existing := range labels {
		if existing == l {
			return labels
		}
	}
	return append(labels, l)
}
