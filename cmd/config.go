package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/ipsniff/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Merge defaults, the config file (--config) and IPSNIFF_* environment
variables, validate the result and print it as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(configFile, cmd.OutOrStdout())
	},
}

func runConfig(path string, w io.Writer) error {
	if _, err := config.Load(path); err != nil {
		return err
	}
	settings, err := config.Settings(path)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
