package cli

import (
	"autoservice/internal/controllers"
	"autoservice/internal/log"
	"autoservice/internal/routes"
	"autoservice/internal/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and progress stream",
		Args:  cobra.NoArgs,
		RunE:  doServe,
	}
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("autoservice",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	))

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	retention, err := services.NewRetention(ctx, app.Settings, cfg.RetentionInterval, app.RetentionTargets()...)
	if err != nil {
		return err
	}

	if !flagVerbose {
		gin.SetMode(gin.ReleaseMode)
	}
	api := &controllers.API{
		Registry:       app.Registry,
		Presets:        app.Presets,
		Coordinator:    app.Coordinator,
		Estimator:      app.Estimator,
		Machine:        app.Fingerprint,
		Reports:        app.Reports,
		History:        app.History,
		Settings:       app.Settings,
		Hub:            app.Hub,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	router := routes.NewRouter(routes.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RPS:            cfg.RateLimit.RPS,
		PerIPRPS:       cfg.RateLimit.PerIPRPS,
		Burst:          cfg.RateLimit.Burst,
	}, api, app.Metrics)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(gctx, "http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := retention.RunOnce(gctx); err != nil {
			slog.WarnContext(gctx, "initial retention run failed", "error", err)
		}
		retention.Start()
		<-gctx.Done()
		return retention.Shutdown()
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(gctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := app.Coordinator.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stopping active run: %w", err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
