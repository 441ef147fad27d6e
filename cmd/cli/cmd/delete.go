package cmd

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [name]",
	Aliases: []string{"rm"},
	Short:   "Terminate a sandbox before it expires",
	Long: `Tear down a sandbox ahead of its expiry and cancel its expiry job.
Deleting a sandbox that is unknown or already terminated succeeds.

Example:
  sandctl delete dev`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClientFromConfig().DeleteSandbox(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}

		cmd.Printf("✓ %s\n", result.Message)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
