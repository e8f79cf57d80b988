package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gehhilfe/orthrus"
	"github.com/gehhilfe/orthrus/internal/httpapi"
)

type serveCmd struct {
	root *rootCmd

	Addr      string
	JWTSecret string
	LogFrom   int64
}

func (c *serveCmd) build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stream over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.root.withStore(cmd, func(ctx context.Context, store *orthrus.Store) error {
				return c.serve(ctx, store)
			})
		},
	}

	cmd.Flags().StringVar(&c.Addr, "addr", ":8080", "Address to listen on.")
	cmd.Flags().StringVar(&c.JWTSecret, "jwtSecret", os.Getenv("ORTHRUS_JWT_SECRET"), "HS256 secret required on write routes; empty leaves them open.")
	cmd.Flags().Int64Var(&c.LogFrom, "logFrom", 0, "Log every event from this position on at debug level, 0 to disable.")

	return cmd
}

func (c *serveCmd) serve(ctx context.Context, store *orthrus.Store) error {
	logger := c.root.logger

	opts := []httpapi.Option{httpapi.WithLogger(logger)}
	if c.JWTSecret != "" {
		opts = append(opts, httpapi.WithJWTSecret(c.JWTSecret))
	}
	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           httpapi.New(store, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", c.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if c.LogFrom > 0 {
		g.Go(func() error {
			for e, err := range store.Follow(ctx, c.LogFrom, orthrus.DefaultPageSize) {
				if err != nil {
					return err
				}
				logger.Debug("event",
					slog.Int64("position", e.Position),
					slog.String("aggregateId", e.AggregateID),
					slog.Int64("revision", e.Revision))
			}
			return nil
		})
	}

	return g.Wait()
}
