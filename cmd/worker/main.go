// Package main is the entry point of the progress worker.
//
// The worker consumes enrollment events to keep learning path progress in
// step with course progress, and runs the periodic reconcile and dead letter
// redelivery jobs. Subcommands cover schema migrations and one-off job runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "worker",
		Short:         "Progress and prerequisite engine worker",
		Long:          "Keeps learning path progress in step with course enrollments and runs maintenance jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runWorker,
	}
	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Consume events and run scheduled jobs until interrupted (default)",
			Args:  cobra.NoArgs,
			RunE:  runWorker,
		},
		newMigrateCmd(),
		newJobCmd(),
	)
	return root
}
