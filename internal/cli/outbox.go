package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	outboxpostgres "enrollment/pkg/platform/outbox/store/postgres"
)

func newOutboxCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and maintain the follow-up job outbox",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "Count jobs not yet processed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := outboxpostgres.New(e.db.DB()).CountPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("count pending outbox entries: %w", err)
			}
			return opts.output(cmd.OutOrStdout(), map[string]int64{"pending": n}, func(w io.Writer) {
				fmt.Fprintf(w, "%d pending\n", n)
			})
		},
	})
	cmd.AddCommand(newOutboxPruneCmd(opts))
	return cmd
}

func newOutboxPruneCmd(opts *options) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete processed jobs older than --older-than",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			e, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := outboxpostgres.New(e.db.DB()).DeleteProcessedBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("prune outbox: %w", err)
			}
			return opts.output(cmd.OutOrStdout(), map[string]int64{"deleted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d processed entries\n", n)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "age of processed entries to delete")
	return cmd
}
