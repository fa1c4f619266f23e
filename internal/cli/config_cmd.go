package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/ciresolve/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect ciresolve settings",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		errs := config.Validate(cfg)
		if len(errs) == 0 {
			fmt.Fprintln(out, "Configuration is valid.")
			return nil
		}

		fmt.Fprintln(out, "Validation errors:")
		for _, e := range errs {
			fmt.Fprintf(out, "  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings with defaults, environment and flags applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		out := cmd.OutOrStdout()
		source := cfg.Source
		if source == "" {
			source = "built-in defaults"
		}
		fmt.Fprintf(out, "# source: %s\n", source)
		fmt.Fprint(out, string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
