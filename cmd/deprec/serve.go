package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schemaops/deprec/pkg/monitor"
	"github.com/schemaops/deprec/pkg/policy"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the access monitoring dashboard",
	Long: `Serves the read-only monitoring API: per-element stats, access trends,
removal candidates, raw events (JSON/CSV export), and raised alerts. Also
runs the soak scanner and, when configured, hot-reloads the approval
policy file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		logger := newLogger()

		telemetry := monitor.NewTelemetryStore(db)
		if err := telemetry.AutoMigrate(); err != nil {
			return err
		}

		cfg := monitor.ConfigFromEnv()
		alerts := monitor.NewAlertSystem(telemetry, cfg.AlertWindow, logger, &monitor.LogNotifier{Logger: logger})
		mon := monitor.NewAccessMonitor(telemetry, alerts, cfg, logger)
		scanner := monitor.NewSoakScanner(telemetry, alerts, cfg, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mon.Start(ctx)
		go scanner.Run(ctx)

		// Approval policy hot reload, if a policy file is configured.
		if path := viper.GetString("policies.file"); path != "" {
			watcher, err := policy.NewWatcher(path, logger)
			if err != nil {
				logger.Error("policy watcher unavailable", "path", path, "error", err)
			} else {
				go func() { _ = watcher.Run(ctx) }()
			}
		}

		addr := serveAddr
		if addr == "" {
			addr = viper.GetString("serve.addr")
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           monitor.NewRouter(telemetry, mon, cfg),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Info("dashboard listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		mon.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config serve.addr)")
}
