package main

import (
	"github.com/spf13/cobra"

	"chatproof/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		format   string
		defaults bool
		check    bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after file, .env and environment overrides are
applied. Credentials are redacted.

Example:
  chatproofd config --format yaml
  chatproofd config --defaults > ~/.config/chatproofd/config.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if !defaults {
				loaded, _, err := loadConfig(rootOpts, check)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			out, err := config.Encode(cfg.Redacted(), format)
			if err != nil {
				return WrapExitError(ExitCommandError, "encode config", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "toml", "output format (toml|yaml|json)")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "print built-in defaults, ignoring files and environment")
	cmd.Flags().BoolVar(&check, "check", false, "fail if the configuration is invalid")

	return cmd
}
