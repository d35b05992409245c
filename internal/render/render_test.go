package render

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/arewethereyet/internal/tracker"
)

func TestBar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		width int
		want  string
	}{
		{ratio: 0, width: 4, want: "[>   ]"},
		{ratio: 0.5, width: 4, want: "[==> ]"},
		{ratio: 1, width: 4, want: "[====]"},
		{ratio: 2, width: 2, want: "[==]"},
		{ratio: -1, width: 2, want: "[> ]"},
		{ratio: 0.5, width: 0, want: "[>]"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Bar(tt.ratio, tt.width), "ratio=%v width=%d", tt.ratio, tt.width)
	}
}

func TestFrameWithTree(t *testing.T) {
	t.Parallel()

	root := tracker.NewGroup("backup")
	photos, err := root.NewItem("photos", 2, 1)
	require.NoError(t, err)
	_, err = root.NewItem("music", 2, 1)
	require.NoError(t, err)
	require.NoError(t, photos.CompleteWork(1))

	r := New(&bytes.Buffer{}, root, Options{Width: 4, Tree: true, Color: true})
	require.Equal(t, "backup [=>  ]  25.0%\n  photos: 0.5\n  music: 0\n", r.Frame())
}

func TestFrameUnnamedCounter(t *testing.T) {
	t.Parallel()

	c := tracker.NewCounter("", 1)
	c.Finish()
	r := New(&bytes.Buffer{}, c, Options{Width: 2, Tree: true})
	require.Equal(t, "progress [==] 100.0%\n", r.Frame())
}

func TestDrawSkipsUnchangedFrames(t *testing.T) {
	t.Parallel()

	c := tracker.NewCounter("job", 2)
	buf := &bytes.Buffer{}
	r := New(buf, c, Options{Width: 2})

	r.Draw()
	r.Draw()
	require.NoError(t, c.CompleteWork(1))
	r.Draw()

	require.Equal(t, "job [> ]   0.0%\njob [=>]  50.0%\n", buf.String())
}

func TestStartStopDrawsFinalFrame(t *testing.T) {
	t.Parallel()

	c := tracker.NewCounter("job", 4)
	buf := &syncBuffer{}
	r := New(buf, c, Options{Width: 4, Interval: 5 * time.Millisecond})
	r.Start()
	r.Start()

	require.NoError(t, c.CompleteWork(2))
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "50.0%")
	}, time.Second, 5*time.Millisecond)

	c.Finish()
	r.Stop()
	r.Stop()
	require.True(t, strings.HasSuffix(buf.String(), "job [====] 100.0%\n"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
