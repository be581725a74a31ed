package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"chatproof/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
}

// NewRootCommand creates the chatproofd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chatproofd",
		Short: "Chat checkpointing and proof bot",
		Long: `chatproofd seals chat messages into hashed checkpoints and answers
proof commands with matching messages and a shareable proof link.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.EnvFile)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default "+config.ConfigPath()+")")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before env overrides")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return WrapExitError(ExitCommandError, fmt.Sprintf("load %s", path), err)
	}
	return nil
}

// loadConfig reads the config file and applies flag overrides. validate
// is off for commands that only inspect configuration.
func loadConfig(opts *RootOptions, validate bool) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(opts.ConfigPath)

	var (
		cfg *config.Config
		err error
	)
	if validate {
		cfg, err = loader.Load()
	} else {
		cfg, err = config.Load(loader.Path())
	}
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
		if validate {
			if err := cfg.Validate(); err != nil {
				return nil, nil, WrapExitError(ExitCommandError, "invalid --log-level", err)
			}
		}
	}
	return cfg, loader, nil
}
