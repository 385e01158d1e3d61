package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/credlens/credlens/internal/models"
)

var reputationVerify string

var reputationCmd = &cobra.Command{
	Use:   "reputation <submitter-id>",
	Short: "Show or update a submitter's reputation",
	Args:  cobra.ExactArgs(1),
	RunE:  runReputation,
}

func init() {
	reputationCmd.Flags().StringVar(&reputationVerify, "set-verification", "", "set verification level: none, basic, verified")
}

func runReputation(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	submitterID := args[0]

	if reputationVerify != "" {
		level := models.VerificationLevel(reputationVerify)
		switch level {
		case models.VerificationNone, models.VerificationBasic, models.VerificationVerified:
		default:
			return fmt.Errorf("unknown verification level %q", reputationVerify)
		}
		if err := a.reputation.SetVerification(submitterID, level); err != nil {
			return err
		}
		fmt.Printf("✅ Verification level set to %s\n", level)
	}

	record, err := a.reputation.GetRecord(submitterID)
	if err != nil {
		return err
	}
	score, err := a.reputation.Get(submitterID)
	if err != nil {
		return err
	}

	fmt.Printf("👤 Reputation for %s\n", submitterID)
	if record == nil {
		fmt.Printf("  No history; neutral score %.2f applies\n", score)
		return nil
	}
	fmt.Printf("  Score: %.2f\n", score)
	fmt.Printf("  Submissions: %d (%d flagged as spam, ratio %.2f)\n",
		record.TotalSubmissions, record.SpamSubmissions, record.SpamRatio())
	fmt.Printf("  Accuracy: %.2f\n", record.AccuracyScore)
	fmt.Printf("  Verification: %s\n", record.VerificationLevel)
	fmt.Printf("  First seen: %s\n", record.FirstSeenAt.Format("2006-01-02"))
	fmt.Printf("  Last seen: %s\n", record.LastSeenAt.Format("2006-01-02 15:04:05"))
	return nil
}
