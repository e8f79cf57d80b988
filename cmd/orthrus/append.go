package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gehhilfe/orthrus"
	"github.com/gehhilfe/orthrus/core"
)

// maxPayloadSize bounds one stdin line.
const maxPayloadSize = 16 << 20

type appendCmd struct {
	root *rootCmd

	Aggregate        string
	ExpectedRevision int64
}

func (c *appendCmd) build() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <aggregateId> [payload...]",
		Short: "Commit payloads to one aggregate in a single batch.",
		Long:  "Commit payloads to one aggregate in a single batch. Without payload arguments every non-empty line of stdin is one payload.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads := args[1:]
			if len(payloads) == 0 {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				scanner.Buffer(make([]byte, 0, 64*1024), maxPayloadSize)
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						payloads = append(payloads, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read payloads: %w", err)
				}
			}
			if len(payloads) == 0 {
				return fmt.Errorf("no payloads to append")
			}

			return c.root.withStore(cmd, func(ctx context.Context, store *orthrus.Store) error {
				stream, err := store.GetEventStream(ctx, args[0], c.Aggregate, orthrus.DefaultPageSize, 1, core.Unbounded())
				if err != nil {
					return err
				}
				if c.ExpectedRevision >= 0 {
					if rev, _ := stream.Revision(); rev != c.ExpectedRevision {
						return fmt.Errorf("aggregate %s is at revision %d, expected %d", args[0], rev, c.ExpectedRevision)
					}
				}

				staged := stream.SaveAll(payloads)
				if err := stream.Commit(ctx); err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, e := range staged {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&c.Aggregate, "aggregate", "a", "", "Aggregate type of the events.")
	cmd.Flags().Int64Var(&c.ExpectedRevision, "expectedRevision", -1, "Fail unless the aggregate is at this revision, 0 for a new one.")
	_ = cmd.MarkFlagRequired("aggregate")

	return cmd
}
