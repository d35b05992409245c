package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/arewethereyet/internal/progress"
)

// TestLogSinkLevels checks that stage drives the log level and fields.
func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Root: "backup"},
		{RunID: runID, TS: now, Stage: progress.StageChange, Root: "backup", Name: "photos", Completed: 0.5},
		{RunID: runID, TS: now, Stage: progress.StageRunError, Root: "backup", Note: "disk full", Dur: time.Second},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, "photos", entries[1].ContextMap()["name"])
	require.Equal(t, 0.5, entries[1].ContextMap()["completed"])
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, "disk full", entries[2].ContextMap()["note"])
}

// TestLogSinkNilLogger ensures the sink falls back to a no-op logger.
func TestLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageChange},
	}))
}
