package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show CredLens configuration and storage status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("🔍 CredLens Status\n")
	fmt.Printf("%s\n", strings.Repeat("═", 50))

	fmt.Printf("\n📋 Configuration:\n")
	fmt.Printf("  Feedback DB: %s\n", cfg.Storage.FeedbackDBPath)
	fmt.Printf("  State DB: %s\n", cfg.Storage.KVPath)
	fmt.Printf("  Spam threshold: %.2f (%s combine)\n", cfg.Spam.Threshold, cfg.Spam.CombinePolicy)
	fmt.Printf("  Retention: %s standard, %s spam\n",
		formatDuration(cfg.Retention.Standard), formatDuration(cfg.Retention.Spam))

	a, err := buildApp()
	if err != nil {
		fmt.Printf("\n💾 Storage: ❌ unavailable (%v)\n", err)
		return nil
	}
	defer a.Close()

	fmt.Printf("\n💾 Storage:\n")
	size, err := a.store.EstimateSize()
	if err == nil {
		pct := float64(size) / float64(cfg.Storage.QuotaBytes) * 100
		fmt.Printf("  Feedback store: %s (%.1f%% of %s quota)\n",
			formatBytes(size), pct, formatBytes(cfg.Storage.QuotaBytes))
	}
	kvSize, err := a.kv.Size()
	if err == nil {
		fmt.Printf("  State store: %s\n", formatBytes(kvSize))
	}

	clusters, err := a.clusters.List()
	if err == nil {
		fmt.Printf("\n🧩 Clusters: %d active\n", len(clusters))
		for _, c := range clusters {
			if c.MeanSpamScore > 0.5 {
				fmt.Printf("  ⚠️  %s: %d members, mean spam score %.2f\n",
					c.Signature, c.MemberCount, c.MeanSpamScore)
			}
		}
	}
	return nil
}
