package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/arewethereyet/internal/hash/sha256"
	"github.com/JakeFAU/arewethereyet/internal/metrics"
	"github.com/JakeFAU/arewethereyet/internal/progress"
	"github.com/JakeFAU/arewethereyet/internal/tracker"
)

const (
	defaultConcurrency = 4
	tracerName         = "github.com/JakeFAU/arewethereyet/internal/transfer"
)

// ErrNoItems is returned when a plan is requested for an empty item list.
var ErrNoItems = errors.New("transfer has no items")

// Item is one object to copy.
type Item struct {
	// Name labels the object in the tracker tree and in the destination path.
	// Empty names fall back to the base name of Source.
	Name string `mapstructure:"name" json:"name"`
	// Source is a path, file://, http(s):// or gs:// URI.
	Source string `mapstructure:"source" json:"source"`
	// Weight overrides the unit weight; 0 means default (or size based).
	Weight float64 `mapstructure:"weight" json:"weight,omitempty"`
}

// Destination stores copied objects and returns their URI.
type Destination interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Limiter throttles access to a source before it is opened.
type Limiter interface {
	Wait(ctx context.Context, uri string) error
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Options tunes an Engine.
type Options struct {
	// Concurrency bounds simultaneous copies (default 4).
	Concurrency int
	// WeightBySize weighs every item without an explicit weight by its size,
	// so large objects dominate the run ratio.
	WeightBySize bool
	// Emitter receives run events; nil disables event reporting.
	Emitter progress.Emitter
	// Clock timestamps events; nil uses the system clock.
	Clock progress.Clock
	// IDs generates run IDs; nil uses random v4 UUIDs.
	IDs IDGenerator
	// Registry exposes the run while it is in flight; nil disables it.
	Registry *progress.Registry
	// Limiter throttles remote sources; nil disables throttling.
	Limiter Limiter
}

// Engine plans and executes transfers.
type Engine struct {
	src    Source
	dest   Destination
	opts   Options
	logger *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(src Source, dest Destination, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Engine{src: src, dest: dest, opts: opts, logger: logger}
}

// Plan is a transfer whose tracker tree has been built but not yet run.
type Plan struct {
	RunID uuid.UUID
	Root  *tracker.Group
	steps []step
}

type step struct {
	item   Item
	size   int64
	stream *tracker.StreamCounter
}

// Result describes one copied object.
type Result struct {
	Name  string `json:"name"`
	URI    string `json:"uri"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Plan stats every source and builds the tracker tree for a run called name.
// Sources of unknown size start with nothing to do and grow as they are read.
func (e *Engine) Plan(ctx context.Context, name string, items []Item) (*Plan, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	runID, err := e.newRunID()
	if err != nil {
		return nil, err
	}
	plan := &Plan{RunID: runID, Root: tracker.NewGroup(name)}
	for _, it := range items {
		if it.Name == "" {
			it.Name = baseName(it.Source)
		}
		size, err := e.src.Stat(ctx, it.Source)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", it.Name, err)
		}
		stream, err := plan.Root.NewStream(it.Name, max(size, 0), e.weight(it, size))
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", it.Name, err)
		}
		plan.steps = append(plan.steps, step{item: it, size: size, stream: stream})
	}
	return plan, nil
}

// Run copies every planned object with bounded concurrency. The first failure
// cancels the remaining copies; the run is reported as RUN_ERROR.
func (e *Engine) Run(ctx context.Context, plan *Plan) ([]Result, error) {
	bridge := progress.Attach(plan.Root, plan.RunID, e.opts.Emitter, e.opts.Clock)
	e.opts.Registry.Add(plan.RunID, plan.Root, bridge.StartedAt())
	defer e.opts.Registry.Remove(plan.RunID)
	results := make([]Result, len(plan.steps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, st := range plan.steps {
		g.Go(func() error {
			res, err := e.copyOne(gctx, plan.Root.Name(), st)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	bridge.Done(err)
	if err != nil {
		e.logger.Warn("transfer failed",
			zap.Stringer("run_id", plan.RunID),
			zap.Float64("completed", plan.Root.Completed()),
			zap.Error(err))
		return nil, err
	}
	e.logger.Info("transfer complete",
		zap.Stringer("run_id", plan.RunID),
		zap.String("root", plan.Root.Name()),
		zap.Int("objects", len(results)))
	return results, nil
}

func (e *Engine) copyOne(ctx context.Context, prefix string, st step) (res Result, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "transfer.copy", trace.WithAttributes(
		attribute.String("transfer.item", st.item.Name),
		attribute.String("transfer.source", st.item.Source),
		attribute.Int64("transfer.size", st.size),
	))
	defer func() {
		metrics.ObserveTransfer(st.item.Source, res.Bytes, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Wait(ctx, st.item.Source); err != nil {
			return Result{}, fmt.Errorf("copy %q: %w", st.item.Name, err)
		}
	}
	rc, err := e.src.Open(ctx, st.item.Source)
	if err != nil {
		return Result{}, fmt.Errorf("copy %q: %w", st.item.Name, err)
	}
	defer func() { _ = rc.Close() }()

	counted := &byteCounter{r: rc}
	digest := sha256.New()
	dst := objectPath(prefix, st.item.Name)
	body := st.stream.Reader(io.TeeReader(counted, digest))
	uri, err := e.dest.PutObject(ctx, dst, contentType(st.item.Source), body)
	if err != nil {
		return Result{}, fmt.Errorf("copy %q: %w", st.item.Name, err)
	}
	if missing := counted.n - st.stream.Todo(); missing > 0 {
		// Unknown or understated size: settle the stream on what was read.
		_ = st.stream.AddWork(missing)
	}
	st.stream.Finish()
	span.SetAttributes(attribute.Int64("transfer.bytes", counted.n))

	e.logger.Debug("object copied",
		zap.String("name", st.item.Name),
		zap.String("uri", uri),
		zap.Int64("bytes", counted.n))
	return Result{Name: st.item.Name, URI: uri, Bytes: counted.n, SHA256: digest.Sum()}, nil
}

func (e *Engine) weight(it Item, size int64) float64 {
	if it.Weight > 0 {
		return it.Weight
	}
	if e.opts.WeightBySize && size > 0 {
		return float64(size)
	}
	return tracker.DefaultWeight
}

func (e *Engine) newRunID() (uuid.UUID, error) {
	if e.opts.IDs == nil {
		return uuid.New(), nil
	}
	id, err := e.opts.IDs.NewRawID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

type byteCounter struct {
	r io.Reader
	n int64
}

func (c *byteCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func objectPath(prefix, name string) string {
	name = strings.TrimLeft(path.Clean("/"+filepath.ToSlash(name)), "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func baseName(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if j := strings.IndexAny(trimmed, "?#"); j >= 0 {
		trimmed = trimmed[:j]
	}
	return trimmed
}

func contentType(uri string) string {
	if ct := mime.TypeByExtension(path.Ext(baseName(uri))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
