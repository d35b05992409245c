package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/arewethereyet/internal/hash/sha256"
	"github.com/JakeFAU/arewethereyet/internal/id/uuid"
	"github.com/JakeFAU/arewethereyet/internal/progress"
	"github.com/JakeFAU/arewethereyet/internal/storage/memory"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestEngineCopiesAndReports(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"photos.tar": strings.Repeat("p", 300),
		"notes.txt":  strings.Repeat("n", 100),
	})
	dest := memory.NewBlobStore()
	em := &recordingEmitter{}
	engine := NewEngine(FileSource{}, dest, Options{
		Concurrency:  2,
		WeightBySize: true,
		Emitter:      em,
		IDs:          uuid.New(),
	}, nil)

	plan, err := engine.Plan(context.Background(), "backup", []Item{
		{Source: filepath.Join(dir, "photos.tar")},
		{Name: "notes", Source: filepath.Join(dir, "notes.txt")},
	})
	require.NoError(t, err)
	require.Equal(t, "VERSION_7", plan.RunID.Version().String())
	units := plan.Root.Units()
	require.Len(t, units, 2)
	require.Equal(t, "photos.tar", units[0].Tracker.Name())
	require.Equal(t, 300.0, units[0].Weight)
	require.Equal(t, 100.0, units[1].Weight)
	require.Zero(t, plan.Root.Completed())

	results, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, []Result{
		{
			Name:   "photos.tar",
			URI:    "memory://backup/photos.tar",
			Bytes:  300,
			SHA256: sha256.Hash([]byte(strings.Repeat("p", 300))),
		},
		{
			Name:   "notes",
			URI:    "memory://backup/notes",
			Bytes:  100,
			SHA256: sha256.Hash([]byte(strings.Repeat("n", 100))),
		},
	}, results)
	require.Equal(t, 1.0, plan.Root.Completed())

	data, ok := dest.Object("backup/notes")
	require.True(t, ok)
	require.Equal(t, strings.Repeat("n", 100), string(data))

	events := em.Events()
	require.Equal(t, progress.StageRunStart, events[0].Stage)
	last := events[len(events)-1]
	require.Equal(t, progress.StageRunDone, last.Stage)
	require.Equal(t, 1.0, last.Completed)
	for _, evt := range events {
		require.Equal(t, plan.RunID, evt.RunUUID())
	}
}

func TestEngineUnknownSize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("streamed"))
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	dest := memory.NewBlobStore()
	engine := NewEngine(NewRouter(map[string]Source{"http": HTTPSource{Client: srv.Client()}}), dest, Options{}, nil)
	plan, err := engine.Plan(context.Background(), "", []Item{{Name: "feed", Source: srv.URL + "/feed.json"}})
	require.NoError(t, err)
	require.Zero(t, plan.Root.Completed())

	results, err := engine.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, int64(8), results[0].Bytes)
	require.Equal(t, "memory://feed", results[0].URI)
	require.Equal(t, 1.0, plan.Root.Completed())
}

func TestEngineFailureReportsRunError(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"a": "aaaa", "b": "bbbb"})
	em := &recordingEmitter{}
	engine := NewEngine(FileSource{}, memory.NewBlobStore(), Options{Concurrency: 1, Emitter: em}, nil)

	plan, err := engine.Plan(context.Background(), "run", []Item{
		{Source: filepath.Join(dir, "a")},
		{Source: filepath.Join(dir, "b")},
	})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "b")))

	_, err = engine.Run(context.Background(), plan)
	require.ErrorContains(t, err, `copy "b"`)

	events := em.Events()
	last := events[len(events)-1]
	require.Equal(t, progress.StageRunError, last.Stage)
	require.Contains(t, last.Note, `copy "b"`)
	require.Equal(t, 0.5, last.Completed)
}

func TestEngineWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{"a": "aa", "b": "bb"})
	limiter := &recordingLimiter{}
	engine := NewEngine(FileSource{}, memory.NewBlobStore(), Options{Limiter: limiter}, nil)
	plan, err := engine.Plan(context.Background(), "run", []Item{
		{Source: filepath.Join(dir, "a")},
		{Source: filepath.Join(dir, "b")},
	})
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), plan)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}, limiter.URIs())

	limiter.err = errors.New("throttled")
	plan, err = engine.Plan(context.Background(), "run", []Item{{Source: filepath.Join(dir, "a")}})
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), plan)
	require.ErrorContains(t, err, "throttled")
}

func TestEnginePlanErrors(t *testing.T) {
	t.Parallel()

	engine := NewEngine(FileSource{}, memory.NewBlobStore(), Options{}, nil)
	_, err := engine.Plan(context.Background(), "run", nil)
	require.ErrorIs(t, err, ErrNoItems)

	_, err = engine.Plan(context.Background(), "run", []Item{{Source: filepath.Join(t.TempDir(), "nope")}})
	require.ErrorContains(t, err, `plan "nope"`)

	dir := writeFiles(t, map[string]string{"a": "a"})
	_, err = engine.Plan(context.Background(), "run", []Item{{Source: filepath.Join(dir, "a"), Weight: -1}})
	require.Error(t, err)
}

func TestObjectPathHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"backup", "a.txt", "backup/a.txt"},
		{"backup", "../../etc/passwd", "backup/etc/passwd"},
		{"", "/abs/x", "abs/x"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, objectPath(tt.prefix, tt.name), fmt.Sprintf("%s + %s", tt.prefix, tt.name))
	}
	require.Equal(t, "photos.tar", baseName("https://host/dir/photos.tar?sig=1"))
	require.Equal(t, "text/plain; charset=utf-8", contentType("/tmp/a.txt"))
	require.Equal(t, "application/octet-stream", contentType("/tmp/blob"))
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

type recordingLimiter struct {
	mu   sync.Mutex
	uris []string
	err  error
}

func (l *recordingLimiter) Wait(_ context.Context, uri string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.uris = append(l.uris, uri)
	return l.err
}

func (l *recordingLimiter) URIs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.uris...)
}
