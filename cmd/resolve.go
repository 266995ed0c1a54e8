package cmd

import (
	"context"
	"fmt"
	"io"
	"net/netip"

	"github.com/spf13/cobra"

	"firestige.xyz/ipsniff/internal/config"
	"firestige.xyz/ipsniff/internal/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the local IPv4 address capture would bind to",
	Long: `Print the IPv4 address of the interface the OS would route the probe
address through. No packets are sent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return runResolve(cmd.Context(), cfg, resolver.LocalAddress, cmd.OutOrStdout())
	},
}

func runResolve(ctx context.Context, cfg *config.Config, resolve func(context.Context, string) (netip.Addr, error), w io.Writer) error {
	if addr, ok := cfg.Capture.BindAddr(); ok {
		fmt.Fprintf(w, "%s (configured)\n", addr)
		return nil
	}
	addr, err := resolve(ctx, cfg.Resolver.ProbeAddress)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, addr)
	return nil
}
