package magik

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
)

// ErrNoTagScope is raised when tag operations are attempted outside an
// active ritual.
var ErrNoTagScope = errors.New("magik: no active tag scope")

// NoPathError reports that no chain of registered blocks connects a start
// type to a target type. It is a configuration error: the registry simply
// cannot produce the requested pipeline.
type NoPathError struct {
	Start  reflect.Type
	Target reflect.Type
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("magik: no block path from %v to %v", e.Start, e.Target)
}

// NoCandidateError reports that no registered block accepts the current
// value during pull-mode selection. Fork carries the one-shot candidate
// restriction that was active, if any.
type NoCandidateError struct {
	Value reflect.Type
	Fork  []string
}

func (e *NoCandidateError) Error() string {
	if len(e.Fork) > 0 {
		return fmt.Sprintf("magik: no type-compatible block for %v within fork [%s]", e.Value, strings.Join(e.Fork, ", "))
	}
	return fmt.Sprintf("magik: no type-compatible block for %v", e.Value)
}

// BlockResolveError reports that a block's activator failed. It names the
// registry entry (index and declared type pair) so misconfiguration is
// locatable without a debugger.
type BlockResolveError struct {
	Index      int
	Name       string
	Input      reflect.Type
	Output     reflect.Type
	Cause      error
	StackTrace []byte
}

func (e *BlockResolveError) Error() string {
	return fmt.Sprintf("magik: resolving block %q (index %d, %v -> %v): %v", e.Name, e.Index, e.Input, e.Output, e.Cause)
}

func (e *BlockResolveError) Unwrap() error {
	return e.Cause
}

func newBlockResolveError(rb *registeredBlock, cause error) *BlockResolveError {
	return &BlockResolveError{
		Index:      rb.index,
		Name:       rb.name,
		Input:      rb.in,
		Output:     rb.out,
		Cause:      cause,
		StackTrace: debug.Stack(),
	}
}

// DaemonStartError reports a composite startup failure after rollback has
// completed. Cause is the failed daemon's own error; RollbackErr collects
// any errors hit while shutting down the daemons that had already started.
type DaemonStartError struct {
	Composite   string
	Failed      string
	RolledBack  []string
	Cause       error
	RollbackErr error
}

func (e *DaemonStartError) Error() string {
	if len(e.RolledBack) > 0 {
		return fmt.Sprintf("magik: composite %q: starting daemon %q: %v (rolled back: %s)",
			e.Composite, e.Failed, e.Cause, strings.Join(e.RolledBack, ", "))
	}
	return fmt.Sprintf("magik: composite %q: starting daemon %q: %v", e.Composite, e.Failed, e.Cause)
}

func (e *DaemonStartError) Unwrap() error {
	return e.Cause
}

// ManifestError reports a composite manifest validation failure, naming the
// offending entry type and the branches involved.
type ManifestError struct {
	EntryType string
	Branches  []string
	Reason    string
}

func (e *ManifestError) Error() string {
	if len(e.Branches) > 0 {
		return fmt.Sprintf("magik: manifest: entry type %q: %s (branches: %s)", e.EntryType, e.Reason, strings.Join(e.Branches, ", "))
	}
	return fmt.Sprintf("magik: manifest: entry type %q: %s", e.EntryType, e.Reason)
}

// SafeTypeAssertion performs safe type assertion with proper error
func SafeTypeAssertion[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T (value: %v)", zero, value, value)
	}

	return typed, nil
}
