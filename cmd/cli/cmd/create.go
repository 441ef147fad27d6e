package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new sandbox",
	Long: `Provision a new sandbox under a unique name. The call blocks until the
provisioning backend has accepted the request. The sandbox is terminated
automatically when its time-to-live runs out.

Names must start with a letter and contain only letters, digits and hyphens.

Example:
  sandctl create dev`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		result, err := newClientFromConfig().CreateSandbox(name)
		if err != nil {
			printError(cmd, err)
			return
		}

		cmd.Printf("✓ Sandbox created!\nName: %s\nHandle: %s\nExpires: %s\n",
			result.Name, result.Handle, formatExpiry(result.ExpiryTime, time.Now()))
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
