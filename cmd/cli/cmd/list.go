package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sandboxes",
	Long:    `List every sandbox known to the controller, including terminated ones, with its status and expiry time.`,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		sandboxes, err := newClientFromConfig().ListSandboxes()
		if err != nil {
			printError(cmd, err)
			return
		}

		if len(sandboxes) == 0 {
			cmd.Println("No sandboxes found")
			return
		}

		now := time.Now()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tEXPIRES")
		for _, sb := range sandboxes {
			expires := sb.ExpiryTime.Format(time.RFC3339)
			if sb.Status == "ACTIVE" {
				if d := sb.ExpiryTime.Sub(now); d > 0 {
					expires = fmt.Sprintf("%s (in %s)", expires, formatDuration(d))
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", sb.Name, sb.Status, expires)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
