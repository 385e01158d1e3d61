package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired feedback and prune stale clusters",
	Long: `Run retention cleanup immediately. Cleanup also runs automatically
when the feedback store crosses 90% of its storage quota.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.pipeline.Cleanup(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("🧹 Cleanup complete\n")
	fmt.Printf("  Records deleted: %d\n", deleted)

	size, err := a.store.EstimateSize()
	if err == nil {
		fmt.Printf("  Store size: %s of %s quota\n", formatBytes(size), formatBytes(cfg.Storage.QuotaBytes))
	}
	return nil
}
