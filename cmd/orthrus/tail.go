package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/gehhilfe/orthrus"
)

type tailCmd struct {
	root *rootCmd

	From     int64
	PageSize int
}

func (c *tailCmd) build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the log and keep printing new events until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.root.withStore(cmd, func(ctx context.Context, store *orthrus.Store) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for e, err := range store.Follow(ctx, c.From, c.PageSize) {
					if err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&c.From, "from", 1, "First position to print.")
	cmd.Flags().IntVar(&c.PageSize, "pageSize", orthrus.DefaultPageSize, "Events read per round trip.")

	return cmd
}
