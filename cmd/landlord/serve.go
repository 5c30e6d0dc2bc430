package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/landlord/internal/runtime"
	srv "github.com/mohammad-safakhou/landlord/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCMD(opts *rootOptions) *cobra.Command {
	var serveAddr string
	var migrateFirst bool
	var migDir string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := opts.cfg, opts.logger
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if migrateFirst && cfg.Storage.Postgres.Enabled() {
				if err := srv.Migrate(migDir, cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					return err
				}
			}

			tele, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, version)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tele.Shutdown(sctx); err != nil {
					logger.Warn("telemetry shutdown", zap.Error(err))
				}
			}()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Server.JWTSecret == "" {
				logger.Warn("server.jwt_secret is empty, authentication disabled")
			}
			server := srv.New(srv.Deps{
				Drafter:     a.pipeline,
				Inbox:       a.inbox,
				Refresher:   a.refresher,
				Metrics:     tele.Handler(),
				Logger:      logger,
				JWTSecret:   []byte(cfg.Server.JWTSecret),
				CORSOrigins: cfg.Server.CORSOrigins,
			})

			if cfg.Server.RefreshCron != "" {
				sched, err := srv.NewScheduler(cfg.Server.RefreshCron, a.refresher, logger)
				if err != nil {
					return err
				}
				sched.Start(ctx)
				defer sched.Stop()
			}

			addr := serveAddr
			if addr == "" {
				addr = cfg.Server.Address
			}
			return server.Run(ctx, addr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.Flags().BoolVar(&migrateFirst, "migrate", false, "apply migrations before serving")
	serve.Flags().StringVar(&migDir, "migrations", "file://migrations", "migrations source used with --migrate")
	return serve
}
