package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/copier/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files for the copier.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  copier config init -o config.yaml
  copier config validate -f config.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings. Master and
follower credentials still need to be filled in before it validates.

Example:
  copier config init -o config.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  copier config validate -f config.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "config.yaml", "output path for the generated config")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	configValidateCmd.MarkFlagRequired("config")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configInitOutput, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("wrote default configuration to %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("%s is valid\n", configValidatePath)
	fmt.Printf("  Mode: %s (magic %d)\n", cfg.Copy.Mode, cfg.Copy.MagicNumber)
	fmt.Printf("  Master: %d @ %s\n", cfg.Master.Login, cfg.Master.Server)
	fmt.Printf("  Followers: %d\n", len(cfg.Followers))
	fmt.Printf("  Ledger: %s (%s)\n", cfg.Ledger.Type, cfg.Ledger.Path)
	fmt.Printf("  Snapshot: %s\n", cfg.System.SnapshotPath)
	return nil
}
