package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nstogner/forge/pkg/config"
	"github.com/nstogner/forge/pkg/server"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.generator, a.orchestrator, a.registry, a.history, a.runner())

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Start(cfg.Server.Addr)
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				slog.Info("Shutting down web server")
				return srv.Shutdown(shutdownCtx)
			})
			if _, err := os.Stat(opts.configPath); err == nil {
				g.Go(func() error {
					return ignoreCanceled(config.Watch(ctx, opts.configPath, a.flags))
				})
			}
			if a.sandbox != nil {
				g.Go(func() error {
					return ignoreCanceled(a.sandbox.Reap(ctx))
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP bind address; overrides server.addr")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
