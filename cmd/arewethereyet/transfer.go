package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/arewethereyet/internal/config"
	"github.com/JakeFAU/arewethereyet/internal/render"
	"github.com/JakeFAU/arewethereyet/internal/transfer"
)

type transferFlags struct {
	name         string
	destDir      string
	concurrency  int
	weightBySize bool
	quiet        bool
}

// newTransferCmd copies the configured items plus any sources given as
// arguments, rendering the aggregated progress on stderr.
func newTransferCmd() *cobra.Command {
	var flags transferFlags
	cmd := &cobra.Command{
		Use:   "transfer [source...]",
		Short: "Copy files, URLs and gs:// objects while reporting one overall progress",
		Long: `transfer copies every item from transfer.items in the config plus the
sources given as arguments. Each source becomes a stream in the run's
tracker tree; the bar shows the weighted completion of the whole run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, args, flags)
		},
	}
	cmd.Flags().StringVar(&flags.name, "name", "", "run name (defaults to transfer.name)")
	cmd.Flags().StringVar(&flags.destDir, "dest", "", "local destination directory (overrides transfer.destination)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "parallel copies (defaults to transfer.concurrency)")
	cmd.Flags().BoolVar(&flags.weightBySize, "weight-by-size", false, "weigh every item by its size")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not render the progress bar")
	return cmd
}

func runTransfer(cmd *cobra.Command, args []string, flags transferFlags) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config()
	tcfg := cfg.Transfer
	if flags.name != "" {
		tcfg.Name = flags.name
	}
	if flags.destDir != "" {
		tcfg.Destination.Kind = config.DestinationLocal
		tcfg.Destination.BaseDir = flags.destDir
	}
	if flags.concurrency > 0 {
		tcfg.Concurrency = flags.concurrency
	}
	if cmd.Flags().Changed("weight-by-size") {
		tcfg.WeightBySize = flags.weightBySize
	}
	tcfg.Items = append(append([]transfer.Item(nil), tcfg.Items...), itemsFromArgs(args)...)

	engine, err := a.TransferEngine(ctx, tcfg)
	if err != nil {
		return err
	}
	plan, err := engine.Plan(ctx, tcfg.Name, tcfg.Items)
	if err != nil {
		return fmt.Errorf("plan transfer: %w", err)
	}

	if cfg.Server.Enabled {
		srv, _, err := startServer(a, cfg.Server.Port)
		if err != nil {
			return err
		}
		defer func() { _ = stopServer(srv, a.Logger()) }()
	}

	var renderer *render.Renderer
	if !flags.quiet {
		renderer = render.New(cmd.ErrOrStderr(), plan.Root, render.Options{
			Interval: cfg.Render.Interval,
			Color:    cfg.Render.Color,
			Tree:     cfg.Render.Tree,
			Width:    cfg.Render.Width,
		})
		renderer.Start()
	}
	results, err := engine.Run(ctx, plan)
	if renderer != nil {
		renderer.Stop()
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", plan.RunID, err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBYTES\tSHA256\tURI")
	for _, res := range results {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", res.Name, res.Bytes, res.SHA256, res.URI)
	}
	return tw.Flush()
}

func itemsFromArgs(args []string) []transfer.Item {
	items := make([]transfer.Item, 0, len(args))
	for _, arg := range args {
		items = append(items, transfer.Item{Source: arg})
	}
	return items
}
