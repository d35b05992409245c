package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/arewethereyet/internal/app"
	"github.com/JakeFAU/arewethereyet/internal/config"
	"github.com/JakeFAU/arewethereyet/internal/progress"
	pubmemory "github.com/JakeFAU/arewethereyet/internal/publisher/memory"
	"github.com/JakeFAU/arewethereyet/internal/store"
	"github.com/JakeFAU/arewethereyet/internal/tracker"
	"github.com/JakeFAU/arewethereyet/internal/transfer"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Logging: config.LoggingConfig{Level: "info"},
		Sinks: config.SinksConfig{
			Log:        true,
			Prometheus: true,
			Store:      config.StoreConfig{Kind: config.StoreMemory},
		},
		PubSub: config.PubSubConfig{TopicName: "milestones"},
		Transfer: config.TransferConfig{
			Name:        "transfer",
			Concurrency: 2,
			Destination: config.DestinationConfig{
				Kind:    config.DestinationLocal,
				BaseDir: filepath.Join(t.TempDir(), "out"),
			},
		},
		Render: config.RenderConfig{Interval: time.Second},
	}
}

func TestNewWiresHubToStore(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Sinks.Milestones = config.MilestoneConfig{Enabled: true, Thresholds: []float64{0.5, 1}}
	reg := prometheus.NewRegistry()
	pub := pubmemory.New()

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(reg), app.WithPublisher(pub))
	require.NoError(t, err)

	root := tracker.NewGroup("backup")
	item, err := root.NewItem("photos", 2, 1)
	require.NoError(t, err)
	runID := uuid.New()
	bridge := progress.Attach(root, runID, a.Hub(), nil)
	require.NoError(t, item.CompleteWork(2))
	bridge.Done(nil)

	require.NoError(t, a.Close(context.Background()))

	run, err := a.Repository().GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, "backup", run.Root)
	assert.InDelta(t, 1.0, run.Completed, 1e-9)

	assert.Len(t, pub.Topic("milestones"), 2)
	assert.Equal(t, 1.0, counterValue(t, reg, "awty_runs_started_total"))
}

func TestNewSQLiteStore(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Sinks.Prometheus = false
	cfg.Sinks.Store = config.StoreConfig{
		Kind:   config.StoreSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "runs.db")},
	}

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	runID := uuid.New()
	bridge := progress.Attach(tracker.NewCounter("job", 1), runID, a.Hub(), nil)
	bridge.Done(nil)
	// Closing the hub flushes to sqlite before the database closes.
	require.NoError(t, a.Close(context.Background()))
	require.FileExists(t, cfg.Sinks.Store.SQLite.Path)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Sinks.Store.Kind = "cassandra"
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "unknown store kind")
}

func TestTransferEngineCopiesToLocalDir(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Sinks.Prometheus = false
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	engine, err := a.TransferEngine(context.Background(), cfg.Transfer)
	require.NoError(t, err)
	plan, err := engine.Plan(context.Background(), "docs", []transfer.Item{{Source: src}})
	require.NoError(t, err)
	results, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(5), results[0].Bytes)

	got, err := os.ReadFile(filepath.Join(cfg.Transfer.Destination.BaseDir, "docs", "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	require.Empty(t, a.Runs().List())
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
