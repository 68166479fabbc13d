package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flanksource/certify"
	"github.com/flanksource/certify/server"
	"github.com/flanksource/certify/shutdown"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve certificate eligibility and downloads over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := certify.Flags.UseFlags()
			if err != nil {
				return err
			}
			if addr != "" {
				config.Server.Addr = addr
			}

			svc, err := certify.NewService(config)
			if err != nil {
				return err
			}
			if _, ok := svc.Fonts.Resolve(cmd.Context()); !ok {
				logger.Warnf("FontAssetMissing: certificates will be rendered with generic fonts")
			}

			httpServer := &http.Server{
				Addr:              config.Server.Addr,
				Handler:           server.New(svc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			shutdown.AddHookWithPriority("http", shutdown.PriorityIngress, func() {
				ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(ctx); err != nil {
					logger.Errorf("http shutdown: %v", err)
				}
			})
			shutdown.AddHookWithPriority("rasterizers", shutdown.PriorityWorkers, func() {
				if err := svc.Renderer.Close(); err != nil {
					logger.Errorf("close rasterizers: %v", err)
				}
			})
			shutdown.AddHookWithPriority("service", shutdown.PriorityDatabase, func() {
				if err := svc.Close(); err != nil {
					logger.Errorf("close: %v", err)
				}
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			errs := make(chan error, 1)
			go func() {
				logger.Infof("listening on %s", config.Server.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errs <- err
				}
				cancel()
			}()

			shutdown.WaitForSignal(ctx)
			select {
			case err := <-errs:
				return err
			default:
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}
