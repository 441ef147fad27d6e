package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scheduled expiries",
	Long:  `List the pending expiry jobs held by the controller's scheduler, soonest first.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		jobs, err := newClientFromConfig().ListJobs()
		if err != nil {
			printError(cmd, err)
			return
		}

		if len(jobs) == 0 {
			cmd.Println("No pending jobs")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tSANDBOX\tRUN AT")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", j.JobID, j.Sandbox, j.RunAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
