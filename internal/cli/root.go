// Package cli implements enrollctl, the operator command line for the enrollment service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type options struct {
	jsonOutput bool
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "enrollctl",
		Short: "Operator tasks for the enrollment service",
		Long: `enrollctl talks directly to the canonical store and the search index.
It reads the same environment as the server (DATABASE_URL, REDIS_URL, JWT_*).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(
		newTokenCmd(opts),
		newAdminCmd(opts),
		newReindexCmd(opts),
		newSweepCmd(opts),
		newRetryCmd(opts),
		newOutboxCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "enrollctl: "+err.Error())
		os.Exit(1)
	}
}

// output prints v as indented JSON with --json, or the text rendering otherwise.
func (o *options) output(w io.Writer, v any, text func(w io.Writer)) error {
	if !o.jsonOutput {
		text(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
