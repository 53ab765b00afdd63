package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"enrollment/internal/reconcile"
	"enrollment/pkg/requestcontext"
)

func newReindexCmd(opts *options) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild search documents from the canonical store",
		Long: `Without --full, pages through every voter and rewrites its document.
With --full, also removes documents whose voter no longer exists.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := requestcontext.WithActor(cmd.Context(), requestcontext.ActorCLI)
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()
			projector := e.projector()

			if full {
				stats, err := projector.Rebuild(ctx)
				if err != nil {
					return fmt.Errorf("rebuild search index: %w", err)
				}
				return opts.output(cmd.OutOrStdout(), stats, func(w io.Writer) {
					fmt.Fprintf(w, "Indexed %d voters in %d batches, removed %d orphans\n",
						stats.Indexed, stats.Batches, stats.OrphansRemoved)
				})
			}

			pages := 0
			cursor := ""
			for {
				next, done, err := projector.BulkReindex(ctx, cursor)
				if err != nil {
					return fmt.Errorf("reindex after cursor %q: %w", cursor, err)
				}
				pages++
				if done {
					break
				}
				cursor = next
			}
			return opts.output(cmd.OutOrStdout(), map[string]int{"pages": pages}, func(w io.Writer) {
				fmt.Fprintf(w, "Reindexed %d pages\n", pages)
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "also prune orphaned documents")
	return cmd
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep and repair stale or missing documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, true)
			if err != nil {
				return err
			}
			defer e.close()

			sweeper := reconcile.NewSweeper(e.voters, e.projector(),
				reconcile.WithBatchSize(e.cfg.Reconcile.BatchSize),
				reconcile.WithLocker(reconcile.NewRedisLocker(e.redis.Client), "", e.cfg.Reconcile.LockTTL),
				reconcile.WithLogger(e.log),
			)
			stats, err := sweeper.Run(ctx)
			if err != nil {
				return fmt.Errorf("reconciliation sweep: %w", err)
			}
			return opts.output(cmd.OutOrStdout(), stats, func(w io.Writer) {
				fmt.Fprintf(w, "Scanned %d, stale %d, missing %d, repaired %d, failed %d, orphans removed %d\n",
					stats.Scanned, stats.Stale, stats.Missing, stats.Repaired, stats.Failed, stats.Orphans)
			})
		},
	}
}
