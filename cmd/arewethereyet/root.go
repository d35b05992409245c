package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/arewethereyet/internal/app"
	"github.com/JakeFAU/arewethereyet/internal/config"
	"github.com/JakeFAU/arewethereyet/internal/logging"
)

const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can inject
// options such as a private Prometheus registry.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// session keeps the services built by the root command so they can be closed
// once the command returns, whether it succeeded or not.
type session struct {
	app    *app.App
	logger *zap.Logger
}

func (s *session) close() error {
	var err error
	if s.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err = s.app.Close(ctx)
		s.app = nil
	}
	if s.logger != nil {
		// Syncing stderr fails with EINVAL on some platforms; nothing to do about it.
		_ = s.logger.Sync()
		s.logger = nil
	}
	return err
}

// newRootCmd creates the root command. Services are built in
// PersistentPreRunE and recorded in s.
func newRootCmd(s *session) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "arewethereyet",
		Short: "Aggregated progress reporting for multi-step work.",
		Long: `arewethereyet tracks nested units of work as one weighted tree and
reports a single completion ratio for the whole, with every change
attributed to the step that caused it.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			s.logger = logger

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			s.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); AWTY_* env vars override it")

	cmd.AddCommand(newTransferCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDemoCmd())
	return cmd
}

// Execute runs the CLI with args from os.Args.
func Execute(ctx context.Context) error {
	s := &session{}
	cmd := newRootCmd(s)
	cmd.SetArgs(os.Args[1:])
	err := cmd.ExecuteContext(ctx)
	if cerr := s.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
