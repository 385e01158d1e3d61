package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var consensusCmd = &cobra.Command{
	Use:   "consensus <url>",
	Short: "Show the community consensus for a URL",
	Long:  `Compute a read-time consensus snapshot over the stored non-spam feedback for one URL.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConsensus,
}

func runConsensus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snapshot, err := a.pipeline.Consensus(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("🗳  Consensus for %s\n", snapshot.URL)
	fmt.Printf("  Feedback counted: %d (agree %d, disagree %d, issues %d)\n",
		snapshot.TotalCounted, snapshot.AgreeCount, snapshot.DisagreeCount, snapshot.IssueCount)
	fmt.Printf("  Agreement rate: %.0f%%\n", snapshot.AgreementRate*100)
	fmt.Printf("  Strength: %.2f (%s confidence)\n", snapshot.ConsensusStrength, snapshot.ConfidenceLevel)
	fmt.Printf("  Trend: %s\n", snapshot.Trend)
	if snapshot.HasStrongConsensus() {
		fmt.Printf("  Strong consensus; eligible to pull the score toward the community view.\n")
	}
	return nil
}
