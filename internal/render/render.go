package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/JakeFAU/arewethereyet/internal/tracker"
)

const (
	defaultInterval = 200 * time.Millisecond
	defaultWidth    = 40
	minWidth        = 10
)

// Options tunes a Renderer.
type Options struct {
	// Interval between redraws. Frames are only written when the tree changed.
	Interval time.Duration
	// Color enables ANSI colors when the output is a terminal.
	Color bool
	// Tree appends the indented per-tracker breakdown under the bar.
	Tree bool
	// Width of the bar in cells; zero derives it from the terminal size.
	Width int
}

// Bar renders ratio as a fixed-width bar such as "[=====>    ]".
func Bar(ratio float64, width int) string {
	width = max(width, 1)
	ratio = min(max(ratio, 0), 1)
	filled := int(ratio * float64(width))
	var sb strings.Builder
	sb.Grow(width + 2)
	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("=", filled))
	if filled < width {
		sb.WriteByte('>')
		sb.WriteString(strings.Repeat(" ", width-filled-1))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Renderer periodically redraws a tracker tree. On a terminal the previous
// frame is overwritten in place; otherwise each changed frame is appended.
type Renderer struct {
	out  io.Writer
	root tracker.Tracker
	opts Options
	tty  bool
	fd   int

	busy *color.Color
	done *color.Color

	dirty       atomic.Bool
	unsubscribe func()

	mu      sync.Mutex
	lines   int
	last    string
	stop    chan struct{}
	stopped chan struct{}
	running bool
}

// New creates a Renderer for root writing to out.
func New(out io.Writer, root tracker.Tracker, opts Options) *Renderer {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	r := &Renderer{
		out:  out,
		root: root,
		opts: opts,
		fd:   -1,
		busy: color.New(color.FgYellow),
		done: color.New(color.FgGreen, color.Bold),
	}
	if f, ok := out.(interface{ Fd() uintptr }); ok && term.IsTerminal(int(f.Fd())) {
		r.tty = true
		r.fd = int(f.Fd())
	}
	if opts.Color && r.tty {
		r.busy.EnableColor()
		r.done.EnableColor()
	} else {
		r.busy.DisableColor()
		r.done.DisableColor()
	}
	return r
}

// Start begins redrawing in the background until Stop is called.
func (r *Renderer) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.stopped = make(chan struct{})
	r.dirty.Store(true)
	r.unsubscribe = r.root.Subscribe(func(tracker.Change) { r.dirty.Store(true) })
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		defer close(r.stopped)

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				if r.dirty.Swap(false) {
					r.Draw()
				}
			}
		}
	}()
}

// Stop halts the background loop and draws the final frame.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	r.unsubscribe()
	r.mu.Unlock()

	<-r.stopped
	r.Draw()
}

// Draw writes the current frame.
func (r *Renderer) Draw() {
	frame := r.Frame()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty {
		if r.lines > 0 {
			fmt.Fprintf(r.out, "\x1b[%dA", r.lines)
		}
		lines := strings.Split(strings.TrimRight(frame, "\n"), "\n")
		for _, line := range lines {
			fmt.Fprintf(r.out, "\r\x1b[K%s\n", line)
		}
		r.lines = len(lines)
		return
	}
	if frame == r.last {
		return
	}
	r.last = frame
	_, _ = io.WriteString(r.out, frame)
}

// Frame renders the current state without writing it.
func (r *Renderer) Frame() string {
	ratio := r.root.Completed()
	name := r.root.Name()
	if name == "" {
		name = "progress"
	}
	paint := r.busy
	if ratio >= 1 {
		paint = r.done
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %5.1f%%\n", name, paint.Sprint(Bar(ratio, r.width(name))), ratio*100)
	if r.opts.Tree {
		if g, ok := r.root.(*tracker.Group); ok {
			for _, u := range g.Units() {
				for _, line := range strings.Split(strings.TrimRight(tracker.Debug(u.Tracker), "\n"), "\n") {
					sb.WriteString("  ")
					sb.WriteString(line)
					sb.WriteByte('\n')
				}
			}
		}
	}
	return sb.String()
}

func (r *Renderer) width(label string) int {
	if r.opts.Width > 0 {
		return r.opts.Width
	}
	if r.tty {
		if cols, _, err := term.GetSize(r.fd); err == nil {
			// label, two spaces, brackets and " 100.0%"
			return max(cols-len(label)-10, minWidth)
		}
	}
	return defaultWidth
}
