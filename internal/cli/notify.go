package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"enrollment/internal/notify"
	"enrollment/pkg/requestcontext"
)

func newRetryCmd(opts *options) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "retry-notifications",
		Short: "Send contact notices that are still owed after the grace period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := requestcontext.WithActor(cmd.Context(), requestcontext.ActorDispatcher)
			e, err := connect(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			if batch <= 0 {
				batch = e.cfg.Notify.RetryBatchSize
			}
			dispatcher := notify.NewDispatcher(e.voters, e.db.Tx(), e.auditor(), notify.NewChannel(e.cfg.Notify, e.log),
				notify.WithTemplate(e.cfg.Notify.TemplateID),
				notify.WithSendTimeout(e.cfg.Notify.SendTimeout),
				notify.WithTxBudget(e.cfg.Database.TxTimeout),
				notify.WithBackoff(e.cfg.Notify.RetryBackoff, e.cfg.Notify.RetryMaxBackoff),
				notify.WithLogger(e.log),
			)
			worker, err := notify.NewRetryWorker(e.voters, dispatcher,
				notify.WithRetryGrace(e.cfg.Notify.RetryGrace),
				notify.WithRetryBatchSize(batch),
				notify.WithRetryMaxAttempts(e.cfg.Notify.RetryMaxAttempts),
				notify.WithRetryLogger(e.log),
			)
			if err != nil {
				return err
			}
			res, err := worker.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("retry notifications: %w", err)
			}
			return opts.output(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "Attempted %d, delivered %d, failed %d, skipped %d\n",
					res.Attempted, res.Delivered, res.Failed, res.Skipped)
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "maximum references to retry (defaults to NOTIFY_RETRY_BATCH_SIZE)")
	return cmd
}
