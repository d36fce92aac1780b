package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/onedesk/configs"
	"github.com/Aman-CERP/onedesk/internal/config"
	"github.com/Aman-CERP/onedesk/internal/output"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage onedesk.yaml.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. onedesk.yaml (or --config)
  3. .env in --dir
  4. Environment variables (ONEDESK_*)`,
	}
	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	return cmd
}

func newConfigInitCmd(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented onedesk.yaml",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			path := g.configPath
			if path == "" {
				path = filepath.Join(g.workDir, config.DefaultFileName)
			}

			if _, err := os.Stat(path); err == nil {
				if !force {
					out.Warningf("%s already exists", path)
					out.Status("", "Use --force to replace it (a backup is kept)")
					return nil
				}
				backup, err := config.BackupFile(path)
				if err != nil {
					return err
				}
				out.Statusf("", "Backup: %s", backup)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(configs.Template), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			out.Successf("Created %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(g.cfg)
			}
			data, err := yaml.Marshal(g.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
