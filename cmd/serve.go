package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/waypoint/internal/config"
	"github.com/xkilldash9x/waypoint/internal/observability"
	"github.com/xkilldash9x/waypoint/internal/planner"
)

// newServeCmd creates the `serve` command, which exposes a planning backend
// over the multipart HTTP protocol.
func newServeCmd() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the planning protocol over HTTP",
		Long: `Serves /plan, /next, /refine, /replan and /health backed by the gemini or
mock planner. The http backend is not allowed here since it would call itself;
it falls back to mock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server().Addr
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			return runServe(ctx, cfg, ln, observability.GetLogger())
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().String("backend", "", "Planner backend: gemini or mock (overrides config)")
	return serveCmd
}

// runServe serves the planning routes on ln until ctx is cancelled.
func runServe(ctx context.Context, cfg config.Interface, ln net.Listener, logger *zap.Logger) error {
	if cfg.Planner().Backend == config.BackendHTTP {
		logger.Info("The http backend cannot serve itself, using mock.")
		cfg.SetPlannerBackend(config.BackendMock)
	}
	client, err := planner.New(ctx, cfg, logger)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to initialize planning client: %w", err)
	}

	sc := cfg.Server()
	srv := &http.Server{
		Handler: planner.Handler(logger, client, planner.Limits{
			MaxScreenshotBytes: sc.MaxScreenshotBytes,
			MaxCropBytes:       sc.MaxCropBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Planning server listening.",
			zap.String("addr", ln.Addr().String()),
			zap.String("backend", string(cfg.Planner().Backend)))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("planning server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down planning server.")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
