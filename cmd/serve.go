package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/api"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics := api.NewMetrics("urbanhcf")
		env, err := initPipeline(ctx, "serve", pipeline.WithStageObserver(metrics.ObserveStage))
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildHandler(env, metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go sweepExpired(ctx, env, time.Minute)

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildHandler wires the API server from the pipeline environment and config.
func buildHandler(env *pipelineEnv, metrics *api.Metrics) http.Handler {
	opts := []api.Option{
		api.WithStore(env.Store),
		api.WithTimeout(cfg.AnalysisTimeout()),
		api.WithMaxConcurrent(cfg.Analysis.MaxConcurrent),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	}
	if env.Geocoder != nil {
		opts = append(opts, api.WithGeocoder(env.Geocoder))
	}
	if metrics != nil {
		opts = append(opts, api.WithMetrics(metrics))
	}
	return api.NewServer(env.Runner, opts...).Handler()
}

// sweepExpired deletes expired results every interval until ctx is done.
func sweepExpired(ctx context.Context, env *pipelineEnv, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := env.Store.DeleteExpired(ctx)
			if err != nil {
				zap.L().Warn("result sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Debug("expired results removed", zap.Int("count", n))
			}
		}
	}
}
