package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"sandplane/pkg/api"
)

var getCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Show details of a sandbox",
	Long:  `Retrieve the stored record of a sandbox: its status (ACTIVE or TERMINATED), backend handle, creation and expiry times.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sb, err := newClientFromConfig().GetSandbox(args[0])
		if err != nil {
			printError(cmd, err)
			return
		}

		printSandbox(cmd, *sb, time.Now())
	},
}

func printSandbox(cmd *cobra.Command, sb api.SandboxResponse, now time.Time) {
	cmd.Printf("%s %sSandbox Details%s\n", statusIcon(sb.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, sb.Name)
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, sb.ID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(sb.Status))
	cmd.Printf("%sHandle:%s      %s\n", colorDim, colorReset, sb.Handle)
	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTime(&sb.CreatedAt))

	if sb.Status == "ACTIVE" {
		cmd.Printf("%sExpires:%s     %s\n", colorDim, colorReset, formatExpiry(sb.ExpiryTime, now))
	} else {
		cmd.Printf("%sExpired:%s     %s\n", colorDim, colorReset, formatTime(&sb.ExpiryTime))
		cmd.Printf("%sTerminated:%s  %s%s%s\n", colorDim, colorReset, colorRed, formatTime(sb.TerminatedAt), colorReset)
	}
}

func init() {
	rootCmd.AddCommand(getCmd)
}
