package extensions

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	magik "github.com/magik-fn/magik-go"
)

func TestLoggingExtensionLogsRitualAndSteps(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	b := magik.NewBoardBuilder()
	b.Use(NewLoggingExtension(log))
	magik.RegisterFunc(b, func(ctx context.Context, s string) (int, error) {
		return len(s), nil
	}, magik.WithName("Length"))
	board, err := b.Build()
	require.NoError(t, err)

	got, err := magik.PostWork[string, int](context.Background(), board, "abcd")
	require.NoError(t, err)
	require.Equal(t, 4, got)

	out := buf.String()
	assert.Contains(t, out, "ritual started")
	assert.Contains(t, out, `"block":"Length"`)
	assert.Contains(t, out, `"mode":"push"`)
	assert.Contains(t, out, "block invoked")
	assert.Contains(t, out, "ritual completed")
}

func TestLoggingExtensionLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	b := magik.NewBoardBuilder()
	b.Use(NewLoggingExtension(log))
	magik.RegisterFunc(b, func(ctx context.Context, s string) (int, error) {
		return 0, errors.New("boom")
	}, magik.WithName("Failing"))
	board, err := b.Build()
	require.NoError(t, err)

	_, err = magik.PostWork[string, int](context.Background(), board, "x")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, "ritual failed")
}
