package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-import/internal/api"
	"github.com/sells-group/crm-import/internal/auth"
	"github.com/sells-group/crm-import/internal/reaper"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the import API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve", "")
		if err != nil {
			return err
		}
		defer env.Close()

		handler := api.NewRouter(api.Config{
			Importer:       env.Importer,
			Jobs:           env.Store,
			Auth:           auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
			Health:         env.Store,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})

		if cfg.Reaper.Enabled {
			sched, err := reaper.NewScheduler(reaper.New(env.Store, cfg.Reaper.StaleAfter()), cfg.Reaper.Schedule)
			if err != nil {
				return err
			}
			sched.Start(ctx)
			defer sched.Stop()
		}

		port := resolvePort(servePort, cfg.Server.Port)
		return startServer(ctx, &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}, seconds(cfg.Server.ShutdownSecs))
	},
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	if configured != 0 {
		return configured
	}
	return 8080
}

// startServer serves until ctx is done, then shuts down within grace.
func startServer(ctx context.Context, srv *http.Server, grace time.Duration) error {
	if grace <= 0 {
		grace = 15 * time.Second
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
	})

	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
