package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect or run maintenance jobs once",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered jobs and their schedules",
			Args:  cobra.NoArgs,
			RunE:  withApp(listJobs),
		},
		&cobra.Command{
			Use:   "run <name>",
			Short: "Run one job now and exit",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runJob),
		},
	)
	return cmd
}

// withApp builds the worker without starting its loops.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		cfg, log, err := loadConfig(level)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func listJobs(cmd *cobra.Command, a *app, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULE\tDESCRIPTION")
	for _, j := range a.sched.Jobs() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", j.Name, j.Schedule, j.Description)
	}
	return w.Flush()
}

func runJob(cmd *cobra.Command, a *app, args []string) error {
	res, err := a.sched.RunNow(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s finished in %s\n", res.JobName, res.Duration)
	return nil
}
