package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/reasoning"
	"github.com/sells-group/groundwater-cli/internal/review"
)

var validateCmd = &cobra.Command{
	Use:   "validate <dataset-id>",
	Short: "Run AI data-quality validation over a dataset",
	Long:  "Sends the dataset for validation, stores the quality assessment and any proposed corrections. Corrections stay pending until accepted or rejected.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		a, err := env.Workspace.Validate(ctx, args[0])
		if err != nil {
			return retryHint(err)
		}
		formatAssessment(cmd.OutOrStdout(), a)
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights <dataset-id>",
	Short: "Generate an AI risk narrative for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Workspace.Insights(ctx, args[0])
		if err != nil {
			return err
		}
		formatInsights(cmd.OutOrStdout(), out)
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <dataset-id>",
	Short: "Run validation and insights together",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Workspace.Review(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.ValidationErr != nil {
			zap.L().Warn("validation failed", zap.String("command", "review"), zap.Error(res.ValidationErr))
			_, _ = fmt.Fprintf(out, "Validation unavailable: %v\n", retryHint(res.ValidationErr))
		} else {
			formatAssessment(out, res.Assessment)
		}
		_, _ = fmt.Fprintln(out)
		formatInsights(out, res.Insights)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(reviewCmd)
}

// retryHint points the operator at the manual retry for service failures.
func retryHint(err error) error {
	var sue *reasoning.ServiceUnavailableError
	if errors.As(err, &sue) {
		return fmt.Errorf("%w (run the command again to retry)", err)
	}
	return err
}

// formatAssessment writes a quality assessment report to w.
func formatAssessment(w io.Writer, a *model.StoredAssessment) {
	qa := a.Assessment
	_, _ = fmt.Fprintf(w, "Quality score: %d/100 (%s)\n", qa.QualityScore, qa.Band())
	if qa.Fallback {
		_, _ = fmt.Fprintln(w, "Note: the reply had no structured payload; showing it as-is.")
	}
	_, _ = fmt.Fprintf(w, "Compliance: WHO %s, Indian %s\n\n", qa.ComplianceStatus.WHO, qa.ComplianceStatus.Indian)
	_, _ = fmt.Fprintln(w, qa.OverallAssessment)

	writeList(w, "Issues found", qa.IssuesFound)
	writeList(w, "Recommendations", qa.Recommendations)

	if len(qa.DataCorrections) > 0 {
		_, _ = fmt.Fprintf(w, "\nProposed corrections (%s):\n", a.Status)
		for _, c := range qa.DataCorrections {
			_, _ = fmt.Fprintf(w, "  - %s: %s -> %s [%s]\n", c.Location, c.Issue, c.SuggestedValue, c.Confidence)
		}
		if a.Status == model.BatchPending {
			_, _ = fmt.Fprintf(w, "\nRun 'corrections accept %s' or 'corrections reject %s'.\n", a.DatasetID, a.DatasetID)
		}
	}
}

// formatInsights writes an insights report, or the unavailable notice.
func formatInsights(w io.Writer, out *review.InsightsOutcome) {
	if !out.Available() {
		_, _ = fmt.Fprintln(w, "Insights unavailable. Run 'insights' again to refresh.")
		return
	}
	in := out.Insights
	_, _ = fmt.Fprintf(w, "Risk assessment: %s\n", in.RiskAssessment)
	writeList(w, "Key findings", in.KeyFindings)
	if len(in.PriorityMetals) > 0 {
		_, _ = fmt.Fprintf(w, "\nPriority metals: %s\n", strings.Join(in.PriorityMetals, ", "))
	}
	if in.GeographicPatterns != "" {
		_, _ = fmt.Fprintf(w, "\nGeographic patterns: %s\n", in.GeographicPatterns)
	}
	writeList(w, "Policy recommendations", in.PolicyRecommendations)
	if in.HealthImplications != "" {
		_, _ = fmt.Fprintf(w, "\nHealth implications: %s\n", in.HealthImplications)
	}
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "  - %s\n", it)
	}
}
