package log

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntoFrom_RoundTrip(t *testing.T) {
	t.Parallel()

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := Into(context.Background(), l)

	require.Same(t, l, From(ctx))
}

func TestFrom_EmptyContext_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	require.Same(t, slog.Default(), From(context.Background()))
}

func TestFrom_NilLoggerInContext_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	ctx := Into(context.Background(), nil)
	require.Same(t, slog.Default(), From(ctx))
}
