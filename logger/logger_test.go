package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil))), &buf
}

func TestContextHandler_AddsContextAttrs(t *testing.T) {
	l, buf := newTestLogger()

	ctx := Ctx(context.Background(), slog.String("request_id", "r-1"))
	ctx = Ctx(ctx, slog.String("user_id", "u-1"))
	l.InfoContext(ctx, "hello")

	line := buf.String()
	assert.Contains(t, line, "request_id=r-1")
	assert.Contains(t, line, "user_id=u-1")
}

func TestContextHandler_BareContext(t *testing.T) {
	l, buf := newTestLogger()

	l.InfoContext(context.Background(), "hello")

	assert.Contains(t, buf.String(), "hello")
}

func TestCtx_SiblingsDoNotShareAttrs(t *testing.T) {
	l, buf := newTestLogger()

	parent := Ctx(context.Background(), slog.String("request_id", "r-1"))
	a := Ctx(parent, slog.String("branch", "a"))
	_ = Ctx(parent, slog.String("branch", "b"))

	l.InfoContext(a, "from a")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "branch=a")
	assert.NotContains(t, lines[0], "branch=b")
}
