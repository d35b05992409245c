package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/arewethereyet/internal/app"
	"github.com/JakeFAU/arewethereyet/internal/progress"
	"github.com/JakeFAU/arewethereyet/internal/render"
	"github.com/JakeFAU/arewethereyet/internal/tracker"
)

const demoChunk = 512

type demoFlags struct {
	steps int
	tick  time.Duration
	quiet bool
}

// newDemoCmd drives a synthetic release pipeline so the renderer, sinks and
// HTTP API can be watched without real work to track.
func newDemoCmd() *cobra.Command {
	var flags demoFlags
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Simulate a nested pipeline and report its progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.steps <= 0 {
				return fmt.Errorf("--steps must be > 0, got %d", flags.steps)
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), a, cmd.ErrOrStderr(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().IntVar(&flags.steps, "steps", 20, "ticks each simulated task takes")
	cmd.Flags().DurationVar(&flags.tick, "tick", 100*time.Millisecond, "duration of one tick")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not render the progress bar")
	return cmd
}

type demoTask func(ctx context.Context, tick <-chan struct{}) error

// buildDemo lays out the tree
//
//	release
//	  fetch (weight 2): sources.tar, assets.tar
//	  checksum: byte stream
//	  index: object stream fed through a channel
//	  publish
func buildDemo(steps int) (*tracker.Group, []demoTask, error) {
	root := tracker.NewGroup("release")
	fetch, err := root.NewGroup("fetch", 2)
	if err != nil {
		return nil, nil, err
	}
	sources, err := fetch.NewItem("sources.tar", int64(steps)*4, 3)
	if err != nil {
		return nil, nil, err
	}
	assets, err := fetch.NewItem("assets.tar", int64(steps), 1)
	if err != nil {
		return nil, nil, err
	}
	checksum, err := root.NewStream("checksum", int64(steps)*demoChunk, 1)
	if err != nil {
		return nil, nil, err
	}
	index, err := root.NewStream("index", int64(steps), 1, tracker.WithObjectMode())
	if err != nil {
		return nil, nil, err
	}
	// publish has no task of its own; it completes with root.Finish.
	if _, err := root.NewItem("publish", 1, 0.5); err != nil {
		return nil, nil, err
	}

	counterTask := func(c *tracker.Counter, per int64) demoTask {
		return func(ctx context.Context, tick <-chan struct{}) error {
			for i := 0; i < steps; i++ {
				if err := waitTick(ctx, tick); err != nil {
					return err
				}
				if err := c.CompleteWork(per); err != nil {
					return err
				}
			}
			return nil
		}
	}
	checksumTask := func(ctx context.Context, tick <-chan struct{}) error {
		w := checksum.Writer(io.Discard)
		chunk := strings.Repeat("x", demoChunk)
		for i := 0; i < steps; i++ {
			if err := waitTick(ctx, tick); err != nil {
				return err
			}
			if _, err := io.WriteString(w, chunk); err != nil {
				return err
			}
		}
		return nil
	}
	indexTask := func(ctx context.Context, tick <-chan struct{}) error {
		docs := make(chan string)
		indexed := tracker.Pipe(ctx, index, docs)
		go func() {
			defer close(docs)
			for i := 0; i < steps; i++ {
				if waitTick(ctx, tick) != nil {
					return
				}
				select {
				case docs <- fmt.Sprintf("doc-%d", i):
				case <-ctx.Done():
					return
				}
			}
		}()
		for range indexed {
		}
		return ctx.Err()
	}
	return root, []demoTask{
		counterTask(sources, 4),
		counterTask(assets, 1),
		checksumTask,
		indexTask,
	}, nil
}

func runDemo(ctx context.Context, a *app.App, stderr, stdout io.Writer, flags demoFlags) error {
	root, tasks, err := buildDemo(flags.steps)
	if err != nil {
		return err
	}
	runID := uuid.New()
	bridge := progress.Attach(root, runID, a.Hub(), nil)
	a.Runs().Add(runID, root, bridge.StartedAt())
	defer a.Runs().Remove(runID)

	var renderer *render.Renderer
	if !flags.quiet {
		cfg := a.Config().Render
		renderer = render.New(stderr, root, render.Options{
			Interval: cfg.Interval,
			Color:    cfg.Color,
			Tree:     true,
			Width:    cfg.Width,
		})
		renderer.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		tick := ticks(gctx, flags.tick)
		g.Go(func() error { return task(gctx, tick) })
	}
	err = g.Wait()
	if err == nil {
		root.Finish()
	}
	bridge.Done(err)
	if renderer != nil {
		renderer.Stop()
	}
	if err != nil {
		return fmt.Errorf("demo run %s: %w", runID, err)
	}
	fmt.Fprintf(stdout, "run %s finished: %s\n", runID, tracker.FormatRatio(root.Completed()))
	return nil
}

func ticks(ctx context.Context, d time.Duration) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func waitTick(ctx context.Context, tick <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-tick:
		if !ok {
			return context.Canceled
		}
		return nil
	}
}
