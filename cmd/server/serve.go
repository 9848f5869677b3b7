package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"roomchat/internal/app"
	"roomchat/internal/transport/rest"
	"roomchat/internal/transport/rest/middleware"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()

			if err := a.Bus.Start(ctx); err != nil {
				return err
			}
			if err := a.ResetService.Start(ctx); err != nil {
				return err
			}
			defer a.ResetService.Stop()

			if _, err := middleware.ParseProxies(cfg.TrustedProxies); err != nil {
				return err
			}

			router := rest.NewRouter(&rest.Container{
				AuthService:    a.AuthService,
				AdminService:   a.AdminService,
				AbuseService:   a.AbuseService,
				ChatService:    a.ChatService,
				AuditService:   a.AuditService,
				WSHub:          a.Hub,
				AllowedOrigins: cfg.AllowedOrigins,
				Edge: middleware.EdgeConfig{
					Secret:         cfg.EdgeSecret,
					UserAgent:      cfg.EdgeUserAgent,
					TrustedProxies: cfg.TrustedProxies,
				},
				Logger: log.Named("http"),
			})

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("server starting",
					zap.String("addr", srv.Addr),
					zap.Bool("edgeGuard", cfg.EdgeSecret != ""),
					zap.Bool("audit", a.AuditService.Enabled()))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			log.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}

			log.Info("server exited")
			return nil
		},
	}
	return cmd
}
