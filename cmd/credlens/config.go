package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/credlens/credlens/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CredLens configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func defaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".credlens", "config.yaml")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote default configuration to %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Printf("storage:\n")
	fmt.Printf("  feedback_db_path: %s\n", cfg.Storage.FeedbackDBPath)
	fmt.Printf("  kv_path: %s\n", cfg.Storage.KVPath)
	fmt.Printf("  quota_bytes: %d\n", cfg.Storage.QuotaBytes)
	fmt.Printf("spam:\n")
	fmt.Printf("  threshold: %.2f\n", cfg.Spam.Threshold)
	fmt.Printf("  combine_policy: %s\n", cfg.Spam.CombinePolicy)
	fmt.Printf("  max_per_minute: %d\n", cfg.Spam.MaxPerMinute)
	fmt.Printf("  max_per_hour: %d\n", cfg.Spam.MaxPerHour)
	fmt.Printf("  max_per_day: %d\n", cfg.Spam.MaxPerDay)
	fmt.Printf("retention:\n")
	fmt.Printf("  standard: %s\n", cfg.Retention.Standard)
	fmt.Printf("  spam: %s\n", cfg.Retention.Spam)
	fmt.Printf("  cluster: %s\n", cfg.Retention.Cluster)
	fmt.Printf("consensus:\n")
	fmt.Printf("  max_records: %d\n", cfg.Consensus.MaxRecords)
	fmt.Printf("  trend_window: %s\n", cfg.Consensus.TrendWindow)
	fmt.Printf("integrator:\n")
	fmt.Printf("  base_weight: %.3f\n", cfg.Integrator.BaseWeight)
	fmt.Printf("  max_weight: %.3f\n", cfg.Integrator.MaxWeight)
	fmt.Printf("  min_volume: %d\n", cfg.Integrator.MinVolume)
	fmt.Printf("  materiality_delta: %.1f\n", cfg.Integrator.MaterialityDelta)
	fmt.Printf("logging:\n")
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	return nil
}
