package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gehhilfe/orthrus"
	"github.com/gehhilfe/orthrus/bus"
)

type rootCmd struct {
	ConfigPath string
	NatsURL    string
	NatsPrefix string
	Verbose    bool

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &rootCmd{}
	cmd := &cobra.Command{
		Use:          "orthrus",
		Short:        "Read and append events of an orthrus stream.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.logger = newLogger(cmd.ErrOrStderr(), c.Verbose)
		},
	}

	cmd.PersistentFlags().StringVarP(&c.ConfigPath, "config", "c", "orthrus.yaml", "Path of the YAML store config.")
	cmd.PersistentFlags().StringVar(&c.NatsURL, "nats", "", "NATS server URL for commit notifications, e.g. "+nats.DefaultURL+".")
	cmd.PersistentFlags().StringVar(&c.NatsPrefix, "natsPrefix", "orthrus", "Subject prefix for commit notifications.")
	cmd.PersistentFlags().BoolVarP(&c.Verbose, "verbose", "v", false, "Log at debug level.")

	cmd.AddCommand(
		(&eventsCmd{root: c}).build(),
		(&appendCmd{root: c}).build(),
		(&tailCmd{root: c}).build(),
		(&serveCmd{root: c}).build(),
	)
	return cmd
}

// newLogger writes text to a terminal and JSON anywhere else.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// open loads the config and opens the store. The returned teardown releases
// the store and the NATS connection.
func (c *rootCmd) open(ctx context.Context) (*orthrus.Store, func() error, error) {
	cfg, err := orthrus.LoadConfig(c.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	opts := []orthrus.Option{orthrus.WithLogger(c.logger)}

	var nc *nats.Conn
	if c.NatsURL != "" {
		nc, err = nats.Connect(c.NatsURL, nats.Name("orthrus"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		opts = append(opts, orthrus.WithMessageBus(bus.NewCoreNatsMessageBus(nc, c.NatsPrefix)))
	}

	store, err := orthrus.Open(ctx, cfg, opts...)
	if err != nil {
		if nc != nil {
			nc.Close()
		}
		return nil, nil, err
	}

	teardown := func() error {
		var result *multierror.Error
		result = multierror.Append(result, store.Destroy(context.WithoutCancel(ctx)))
		if nc != nil {
			result = multierror.Append(result, nc.Drain())
		}
		return result.ErrorOrNil()
	}
	return store, teardown, nil
}

// withStore runs fn against an open store and tears it down afterwards.
func (c *rootCmd) withStore(cmd *cobra.Command, fn func(ctx context.Context, store *orthrus.Store) error) (err error) {
	ctx := cmd.Context()
	store, teardown, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if tErr := teardown(); tErr != nil {
			err = multierror.Append(err, tErr).ErrorOrNil()
		}
	}()
	return fn(ctx, store)
}
