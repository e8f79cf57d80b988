package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gehhilfe/orthrus"
	"github.com/gehhilfe/orthrus/core"
)

type eventsCmd struct {
	root *rootCmd

	From     int64
	To       int64
	PageSize int
}

func (c *eventsCmd) bound() core.Bound {
	if c.To <= 0 {
		return core.Unbounded()
	}
	return core.UpTo(c.To)
}

func writeEvents(ctx context.Context, w io.Writer, cursor core.Pager[orthrus.Event]) error {
	enc := json.NewEncoder(w)
	for page, err := range core.Pages(ctx, cursor) {
		if err != nil {
			return err
		}
		for _, e := range page.Items {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *eventsCmd) build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print events as JSON lines.",
	}

	all := &cobra.Command{
		Use:   "all",
		Short: "Print the log by position.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.root.withStore(cmd, func(ctx context.Context, store *orthrus.Store) error {
				cursor, err := store.GetAllEvents(c.From, c.bound(), c.PageSize)
				if err != nil {
					return err
				}
				return writeEvents(ctx, cmd.OutOrStdout(), cursor)
			})
		},
	}

	byID := &cobra.Command{
		Use:   "id <aggregateId>",
		Short: "Print the events of one aggregate by revision.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.root.withStore(cmd, func(ctx context.Context, store *orthrus.Store) error {
				cursor, err := store.GetEventsByID(args[0], c.PageSize, c.From, c.bound())
				if err != nil {
					return err
				}
				return writeEvents(ctx, cmd.OutOrStdout(), cursor)
			})
		},
	}

	byType := &cobra.Command{
		Use:   "type <aggregate>",
		Short: "Print the events of one aggregate type.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.root.withStore(cmd, func(ctx context.Context, store *orthrus.Store) error {
				cursor, err := store.GetEventsByType(args[0], c.PageSize)
				if err != nil {
					return err
				}
				return writeEvents(ctx, cmd.OutOrStdout(), cursor)
			})
		},
	}

	last := &cobra.Command{
		Use:   "last <aggregateId>",
		Short: "Print the last event of one aggregate.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.root.withStore(cmd, func(ctx context.Context, store *orthrus.Store) error {
				e, found, err := store.GetLastEvent(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("aggregate %s has no events", args[0])
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(e)
			})
		},
	}

	for _, sub := range []*cobra.Command{all, byID} {
		sub.Flags().Int64Var(&c.From, "from", 1, "First position or revision to print.")
		sub.Flags().Int64Var(&c.To, "to", 0, "Last position or revision to print, 0 for no limit.")
	}
	for _, sub := range []*cobra.Command{all, byID, byType} {
		sub.Flags().IntVar(&c.PageSize, "pageSize", orthrus.DefaultPageSize, "Events read per round trip.")
	}

	cmd.AddCommand(all, byID, byType, last)
	return cmd
}
