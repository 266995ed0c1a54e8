// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd runs a capture when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "ipsniff",
	Short: "ipsniff - raw IPv4 packet capture and header decoder",
	Long: `ipsniff opens a raw capture endpoint on the local IPv4 address, enables
promiscuous delivery where the platform allows it, and prints one summary line
per captured datagram: timestamp, source, destination, protocol and size.

Raw capture requires elevated privileges (root or CAP_NET_RAW on Linux,
Administrator on Windows). Use only on networks you own or may monitor.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCaptureCommand,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and IPSNIFF_* environment when empty)")
	addCaptureFlags(rootCmd)

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(configCmd)
}
