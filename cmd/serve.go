package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fer004/Sensores/internal/geo"
	"github.com/fer004/Sensores/internal/layer"
)

var (
	servePort     int
	serveRunFirst bool
	serveRefresh  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest regional layer and run history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd)
		if cmd.Flags().Changed("refresh") {
			cfg.Server.RefreshMinutes = serveRefresh
		}

		reg := prometheus.NewRegistry()
		env, err := initPipeline(ctx, "serve", reg)
		if err != nil {
			return err
		}
		defer env.Close()

		regions, err := geo.LoadRegions(cfg.Input.Regions, geo.LoadOptions{
			NameField: cfg.Input.NameField,
			Encoding:  cfg.Input.DBFEncoding,
		})
		if err != nil {
			return eris.Wrap(err, "load regions")
		}

		opts := layer.Options{
			Regions:     regions,
			Metrics:     env.Metrics.Handler(),
			CORSOrigins: cfg.Server.CORSOrigins,
		}
		if env.Store != nil {
			opts.History = env.Store
		}
		srv := layer.NewServer(opts)

		refresh := func(ctx context.Context) error {
			out, err := env.Pipeline.Run(ctx)
			if err != nil {
				return err
			}
			srv.Publish(out.Run, out.Result.Records)
			return nil
		}

		if serveRunFirst {
			if err := refresh(ctx); err != nil {
				zap.L().Error("initial run failed, serving history only", zap.Error(err))
			}
		}
		go layer.Refresh(ctx, time.Duration(cfg.Server.RefreshMinutes)*time.Minute, refresh)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveRunFirst, "run", true, "run the pipeline once before serving")
	serveCmd.Flags().IntVar(&serveRefresh, "refresh", 0, "minutes between pipeline runs, 0 disables (default from config)")
	addRunFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
