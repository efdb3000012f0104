package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetup_Levels(t *testing.T) {
	ctx := context.Background()

	l := SetupWriter(&bytes.Buffer{}, "debug", "text")
	assert.True(t, l.Handler().Enabled(ctx, slog.LevelDebug))

	l = SetupWriter(&bytes.Buffer{}, "", "text")
	assert.False(t, l.Handler().Enabled(ctx, slog.LevelDebug))
	assert.True(t, l.Handler().Enabled(ctx, slog.LevelInfo))

	l = SetupWriter(&bytes.Buffer{}, "WARN", "text")
	assert.False(t, l.Handler().Enabled(ctx, slog.LevelInfo))
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")
	slog.Info("stream finished", "topic", "t1")
	assert.Contains(t, buf.String(), `"topic":"t1"`)
}
