package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestIntoContext(t *testing.T) {
	l := New("stepc", log.DebugLevel)
	ctx := IntoContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestSubLoggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, "stepc", log.DebugLevel))

	SubLogger(base, "branch").Info("compiled")

	assert.Contains(t, buf.String(), "stepc/branch")
	assert.Contains(t, buf.String(), "compiled")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, "stepc", log.WarnLevel))

	l.Debug("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
