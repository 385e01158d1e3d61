package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/credlens/credlens/internal/models"
)

var (
	submitType       string
	submitSubmitter  string
	submitText       string
	submitConfidence float64
	submitScore      float64
	submitScoreConf  float64
)

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Submit feedback about a page's credibility score",
	Long: `Run one feedback submission through the full pipeline: spam
classification, storage, clustering, consensus refresh, and score
integration. Prints the verdict and any resulting score adjustment.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitType, "type", "t", "agree", "feedback type: agree, disagree, report_issue")
	submitCmd.Flags().StringVarP(&submitSubmitter, "submitter", "s", "", "submitter identifier (required)")
	submitCmd.Flags().StringVarP(&submitText, "text", "m", "", "optional free-text comment")
	submitCmd.Flags().Float64VarP(&submitConfidence, "confidence", "c", 0.5, "stated confidence in [0,1]")
	submitCmd.Flags().Float64Var(&submitScore, "score", 50, "current credibility score in [0,100]")
	submitCmd.Flags().Float64Var(&submitScoreConf, "score-confidence", 0.5, "confidence of the current score in [0,1]")
	submitCmd.MarkFlagRequired("submitter")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sub, err := models.NewSubmission(
		models.FeedbackType(submitType), args[0], submitSubmitter, submitText, submitConfidence, time.Now(),
	)
	if err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.pipeline.Submit(ctx, sub, models.CredibilityScore{
		Score:      submitScore,
		Confidence: submitScoreConf,
	})
	if err != nil {
		return err
	}

	if result.WasFiltered {
		fmt.Printf("🚫 Submission filtered\n")
		fmt.Printf("  %s\n", result.Message)
		return nil
	}
	if !result.Success {
		fmt.Printf("❌ Submission failed: %s\n", result.Message)
		return nil
	}

	fmt.Printf("✅ Feedback accepted\n")
	fmt.Printf("  ID: %s\n", result.FeedbackID)
	if v := result.SpamVerdict; v != nil {
		fmt.Printf("  Risk: %s (confidence %.2f)\n", v.RiskLevel, v.Confidence)
		for _, reason := range v.Reasons {
			fmt.Printf("    - %s\n", reason)
		}
	}
	if r := result.Integration; r != nil {
		fmt.Printf("\n📊 Score integration:\n")
		fmt.Printf("  Original: %.1f\n", r.OriginalScore)
		fmt.Printf("  Adjusted: %.1f (weight %.3f, reward %+.2f)\n", r.AdjustedScore, r.WeightApplied, r.RewardSignal)
		if r.ShouldPersist {
			fmt.Printf("  Change is material; persist the adjusted score.\n")
		} else {
			fmt.Printf("  Change below materiality threshold; score unchanged.\n")
		}
	}
	return nil
}
