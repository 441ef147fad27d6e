package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sandctl",
	Short: "Sandctl is a command line tool for interacting with the sandplane controller",
	Long: `sandctl is the command-line interface for sandplane, a service that provisions
short-lived sandbox environments and tears them down when their time-to-live runs out.

Every sandbox is identified by a unique name. It stays ACTIVE until it expires or is
deleted, after which it is kept as TERMINATED history.

Common workflows:

  Create a sandbox:
    sandctl create dev

  List sandboxes and their expiry:
    sandctl list

  Inspect one sandbox:
    sandctl get dev

  Terminate a sandbox early:
    sandctl delete dev

  See scheduled expiries:
    sandctl jobs

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    SANDPLANE_URL      Controller URL (default: http://localhost:6161)
    SANDPLANE_TOKEN    OAuth access token (open <url>/auth/login to obtain one)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".sandctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".sandctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "SANDPLANE_VARNAME"
	viper.SetEnvPrefix("SANDPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sandctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "sandplane controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Access token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// newClientFromConfig builds a client from the resolved url and token.
func newClientFromConfig() *SandboxClient {
	return NewSandboxClient(viper.GetString("url"), viper.GetString("token"))
}

// printError reports err the same way for every command.
func printError(cmd *cobra.Command, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("Error: %v\n", err)
}
