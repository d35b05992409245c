package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/arewethereyet/internal/api"
	"github.com/JakeFAU/arewethereyet/internal/app"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live progress, run history and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = a.Config().Server.Port
			}
			srv, errCh, err := startServer(a, port)
			if err != nil {
				return err
			}
			select {
			case <-cmd.Context().Done():
			case err := <-errCh:
				return err
			}
			return stopServer(srv, a.Logger())
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port (defaults to server.port)")
	return cmd
}

// startServer binds the API server on port and serves it in the background.
// Serve errors other than a clean shutdown are delivered on the channel.
func startServer(a *app.App, port int) (*http.Server, <-chan error, error) {
	logger := a.Logger().Named("api")
	handler := api.NewServer(a.Config(), a.Runs(), a.Repository(), logger).Handler()
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			errCh <- fmt.Errorf("serve http: %w", err)
		}
	}()
	return srv, errCh, nil
}

func stopServer(srv *http.Server, logger *zap.Logger) error {
	logger.Info("shutdown initiated")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
