package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/m1gwings/treedrawer/tree"

	magik "github.com/magik-fn/magik-go"
)

// ChainDebugExtension logs the executed chain and the full registry when a
// block invocation fails.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewChainDebugExtension(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewChainDebugExtension(handler)
//
//	// Silent (for testing)
//	ext := extensions.NewChainDebugExtension(extensions.NewSilentHandler())
type ChainDebugExtension struct {
	magik.BaseExtension

	mu     sync.Mutex
	trace  map[string][]magik.BlockInfo
	board  *magik.Board
	logger *slog.Logger
}

// NewChainDebugExtension creates a new chain debug extension.
// logHandler: slog.Handler for logging (use HumanHandler for formatted
// output, or any other slog.Handler)
func NewChainDebugExtension(logHandler slog.Handler) *ChainDebugExtension {
	return &ChainDebugExtension{
		BaseExtension: magik.NewBaseExtension("chain-debug"),
		trace:         make(map[string][]magik.BlockInfo),
		logger:        slog.New(logHandler),
	}
}

func (e *ChainDebugExtension) Init(b *magik.Board) error {
	e.board = b
	return nil
}

// WrapStep records each executed block under its ritual.
func (e *ChainDebugExtension) WrapStep(ctx context.Context, next func() (any, error), step *magik.StepInfo) (any, error) {
	e.mu.Lock()
	e.trace[step.Ritual.ID()] = append(e.trace[step.Ritual.ID()], step.Block)
	e.mu.Unlock()

	return next()
}

// OnError logs the chain executed so far and the registry.
func (e *ChainDebugExtension) OnError(err error, step *magik.StepInfo) {
	e.mu.Lock()
	executed := append([]magik.BlockInfo(nil), e.trace[step.Ritual.ID()]...)
	e.mu.Unlock()

	e.logger.Error("Block Invocation Error",
		"ritual", step.Ritual.ID(),
		"block", step.Block.Name,
		"error", err.Error(),
		"chain", DrawChain(fmt.Sprintf("%v", step.Input), executed),
		"registry", DescribeRegistry(e.board.Registry()),
	)
}

// OnRitualEnd drops the ritual's trace.
func (e *ChainDebugExtension) OnRitualEnd(ctx context.Context, r *magik.Ritual, result any, err error) error {
	e.mu.Lock()
	delete(e.trace, r.ID())
	e.mu.Unlock()
	return nil
}

// DrawChain renders a block sequence as a tree rooted at the start type.
func DrawChain(start string, blocks []magik.BlockInfo) string {
	t := tree.NewTree(tree.NodeString(start))
	cur := t
	for _, b := range blocks {
		cur = cur.AddChild(tree.NodeString(fmt.Sprintf("%s (%v -> %v)", b.Name, b.Input, b.Output)))
	}
	return t.String()
}

// DescribeRegistry renders the registered blocks as stable plain text, one
// line per block in registration order.
func DescribeRegistry(blocks []magik.BlockInfo) string {
	var sb strings.Builder
	for _, b := range blocks {
		fmt.Fprintf(&sb, "%d %s: %v -> %v [%s]\n", b.Index, b.Name, b.Input, b.Output, strings.Join(b.Caps, " "))
	}
	return sb.String()
}

// SilentHandler is a slog.Handler that discards all log output
// Useful for testing when you don't want log output
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}

// HumanHandler is a slog.Handler that formats logs for human readability
// with proper line breaks (especially for chain drawings).
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if _, err := fmt.Fprintf(h.writer, "\n%s\n[ChainDebug] %s\n%s\n", rule(), record.Message, rule()); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		val := a.Value.String()
		if strings.Contains(val, "\n") {
			_, writeErr = fmt.Fprintf(h.writer, "\n%s:\n%s\n", a.Key, val)
		} else {
			_, writeErr = fmt.Fprintf(h.writer, "%s: %s\n", a.Key, val)
		}
		return writeErr == nil
	})
	if writeErr != nil {
		return writeErr
	}
	_, err := fmt.Fprintf(h.writer, "%s\n\n", rule())
	return err
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}

func rule() string {
	return strings.Repeat("=", 70)
}
