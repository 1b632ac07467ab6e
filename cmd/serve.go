package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pubmed-graph/services"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Betriebs-API starten und Läufe nach CRON_SCHEDULE planen",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg, logging := rt.cfg, rt.logger

			m, err := rt.manager(ctx)
			if err != nil {
				return err
			}
			queries, err := rt.queries()
			if err != nil {
				return err
			}
			scheduler, err := services.NewScheduler(cfg.CronSchedule, m.Run, logging)
			if err != nil {
				return err
			}
			scheduler.Start()
			logging.Info("Scheduler gestartet", zap.String("schedule", cfg.CronSchedule))

			server := &services.Server{Config: cfg, Manager: m, Scheduler: scheduler, Queries: queries, Logger: logging}
			srv := &http.Server{
				Addr:              ":" + cfg.HTTPPort,
				Handler:           server.Router(),
				ReadTimeout:       30 * time.Second,
				ReadHeaderTimeout: 15 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					logging.Error("Failed to run server", zap.Error(err))
					<-scheduler.Stop().Done()
					return err
				}
			case <-ctx.Done():
			}

			logging.Info("Fahre herunter")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn("Server nicht sauber beendet", zap.Error(err))
			}
			// Ein laufender Job wird zu Ende geführt.
			<-scheduler.Stop().Done()
			return nil
		},
	}
}
