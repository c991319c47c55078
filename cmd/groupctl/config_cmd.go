package main

import (
	"fmt"

	"github.com/danmuck/groupctl/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check a client config file",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(path, force); err != nil {
				return configError{err}
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", config.DefaultPath, "config file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return configError{err}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %s@%s:%d groups=%v\n", cfg.User, cfg.Host, cfg.Port, cfg.Groups)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", config.DefaultPath, "config file to validate")
	return cmd
}
