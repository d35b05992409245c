package tracker

import (
	"context"
	"io"
)

// StreamOption configures a StreamCounter.
type StreamOption func(*streamConfig)

type streamConfig struct {
	objectMode bool
}

// WithObjectMode counts every chunk as one unit of work regardless of its
// length. The stream size is then a number of objects rather than bytes.
func WithObjectMode() StreamOption {
	return func(cfg *streamConfig) {
		cfg.objectMode = true
	}
}

// StreamCounter is a pass-through adapter that completes work as data flows
// through it. Bookkeeping is delegated to an internal Counter; changes are
// re-emitted with the StreamCounter as their source.
type StreamCounter struct {
	counter    *Counter
	objectMode bool
	events     emitter
}

// NewStreamCounter creates a StreamCounter expecting size units of data. A
// size of 0 means unknown; grow it later with AddWork.
func NewStreamCounter(name string, size int64, opts ...StreamOption) *StreamCounter {
	var cfg streamConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	s := &StreamCounter{
		counter:    NewCounter(name, size),
		objectMode: cfg.objectMode,
	}
	s.counter.Subscribe(s.forward)
	return s
}

// Name returns the stream name.
func (s *StreamCounter) Name() string {
	return s.counter.Name()
}

// Completed returns the ratio of observed data to the expected size.
func (s *StreamCounter) Completed() float64 {
	return s.counter.Completed()
}

// Todo returns the expected size.
func (s *StreamCounter) Todo() int64 {
	return s.counter.Todo()
}

// Done returns the amount of data observed so far, capped at Todo.
func (s *StreamCounter) Done() int64 {
	return s.counter.Done()
}

// AddWork grows the expected size by n.
func (s *StreamCounter) AddWork(n int64) error {
	return s.counter.AddWork(n)
}

// Finish marks the stream as fully consumed.
func (s *StreamCounter) Finish() {
	s.counter.Finish()
}

// Subscribe registers fn for change notifications.
func (s *StreamCounter) Subscribe(fn Listener) func() {
	return s.events.subscribe(fn)
}

// Observe records one chunk of data. Byte slices, strings and values with a
// Len method count by length; everything else, and empty chunks, count as 1.
func (s *StreamCounter) Observe(chunk any) {
	// measure never returns a negative amount.
	_ = s.counter.CompleteWork(s.measure(chunk))
}

// Reader returns an io.Reader that yields r's data unchanged while counting
// the bytes read.
func (s *StreamCounter) Reader(r io.Reader) io.Reader {
	return &countingReader{r: r, s: s}
}

// Writer returns an io.Writer that forwards to w unchanged while counting the
// bytes written.
func (s *StreamCounter) Writer(w io.Writer) io.Writer {
	return &countingWriter{w: w, s: s}
}

// Pipe forwards every value from in to the returned channel unchanged,
// observing each one on s first. The output closes when in is closed or ctx
// is done.
func Pipe[T any](ctx context.Context, s *StreamCounter, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				s.Observe(v)
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *StreamCounter) forward(c Change) {
	c.Source = s
	s.events.emit(c)
}

func (s *StreamCounter) measure(chunk any) int64 {
	if s.objectMode {
		return 1
	}
	var n int
	switch v := chunk.(type) {
	case []byte:
		n = len(v)
	case string:
		n = len(v)
	case interface{ Len() int }:
		n = v.Len()
	}
	if n <= 0 {
		return 1
	}
	return int64(n)
}

func (s *StreamCounter) transferred(n int) {
	if n <= 0 {
		return
	}
	if s.objectMode {
		_ = s.counter.CompleteWork(1)
		return
	}
	_ = s.counter.CompleteWork(int64(n))
}

type countingReader struct {
	r io.Reader
	s *StreamCounter
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.s.transferred(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	s *StreamCounter
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.s.transferred(n)
	return n, err
}
