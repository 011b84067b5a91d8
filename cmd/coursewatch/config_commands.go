package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"coursewatch/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}

			if overwrite {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				if err := os.Remove(expanded); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove existing config: %w", err)
				}
				target = expanded
			}

			written, err := config.WriteSampleConfig(target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", written)
			fmt.Fprintln(out, "Edit the file to set the email recipient and SMTP server before starting the daemon.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configFlagValue())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the resolved configuration file path",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagPath := ctx.configFlagValue(); flagPath != "" {
				expanded, err := config.ExpandPath(flagPath)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), expanded)
				return nil
			}
			path, err := config.DefaultConfigPath()
			if err != nil {
				return fmt.Errorf("determine default config path: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configFlagValue())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path:       %s (exists: %s)\n", path, yesNo(exists))
			fmt.Fprintf(out, "State directory:   %s\n", cfg.Paths.StateDir)
			fmt.Fprintf(out, "Log directory:     %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Catalog URL:       %s\n", cfg.Catalog.SourceURL)
			fmt.Fprintf(out, "Poll interval:     %s\n", cfg.PollInterval())
			fmt.Fprintf(out, "Browser fallback:  %s\n", yesNo(cfg.Browser.Enabled))
			fmt.Fprintf(out, "Email enabled:     %s\n", yesNo(cfg.Email.Enabled))
			if cfg.Email.Enabled {
				fmt.Fprintf(out, "Email recipient:   %s\n", cfg.Email.Recipient)
				fmt.Fprintf(out, "SMTP server:       %s:%d\n", cfg.Email.SMTPServer, cfg.Email.SMTPPort)
			}
			return nil
		},
	}
}
