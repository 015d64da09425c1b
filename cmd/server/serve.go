package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/wound-api/internal/handlers"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP prediction server",
		Example: `  # Serve on the default address with the default model
  wound-api serve

  # Custom address and model
  wound-api serve --addr :8080 --model models/wounds.onnx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := bootstrap(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.cfg.Log.Development {
				gin.SetMode(gin.ReleaseMode)
			}

			router := handlers.NewRouter(a.service, handlers.RouterConfig{
				AllowedOrigin:  cfg.Server.AllowedOrigin,
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
			}, a.logger)

			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				a.logger.Info("server starting",
					zap.String("addr", cfg.Server.Addr),
					zap.Bool("model_available", a.service.Available()),
					zap.String("allowed_origin", cfg.Server.AllowedOrigin),
				)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				a.logger.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("server shutdown failed", zap.Error(err))
					return err
				}
				a.logger.Info("server stopped")
				return nil
			case err := <-serverErr:
				a.logger.Error("server failed", zap.Error(err))
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides config)")

	return cmd
}
