package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/correction"
	"github.com/sells-group/groundwater-cli/internal/model"
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Accept or reject the pending corrections of a dataset",
}

var correctionsAcceptCmd = &cobra.Command{
	Use:   "accept <dataset-id>",
	Short: "Apply the pending correction batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Workspace.AcceptCorrections(ctx, args[0])
		if err != nil {
			return err
		}
		zap.L().Info("corrections applied", zap.String("command", "corrections accept"),
			zap.Int("applied", res.Applied), zap.Int("skipped", res.Skipped))
		formatCorrectionResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var correctionsRejectCmd = &cobra.Command{
	Use:   "reject <dataset-id>",
	Short: "Discard the pending correction batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Workspace.RejectCorrections(ctx, args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d corrections\n", n)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <dataset-id>",
	Short: "Show the correction audit trail of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Workspace.Audit(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			zap.L().Info("no audit entries found", zap.String("command", "audit"))
			return nil
		}
		formatAudit(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	correctionsCmd.AddCommand(correctionsAcceptCmd)
	correctionsCmd.AddCommand(correctionsRejectCmd)
	rootCmd.AddCommand(correctionsCmd)
	rootCmd.AddCommand(auditCmd)
}

// formatCorrectionResult writes applied and skipped counts, then each skip.
func formatCorrectionResult(w io.Writer, res *correction.Result) {
	_, _ = fmt.Fprintf(w, "Applied %d corrections, skipped %d\n", res.Applied, res.Skipped)
	for _, sk := range res.Skips {
		_, _ = fmt.Fprintf(w, "  - %s\n", sk.Error())
	}
}

// formatAudit writes a tabular audit trail to out.
func formatAudit(out io.Writer, entries []model.AuditEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tACTION\tLOCATION\tFIELD\tOLD\tNEW\tRISK\tNOTE")
	_, _ = fmt.Fprintln(w, "----\t------\t--------\t-----\t---\t---\t----\t----")
	for _, e := range entries {
		riskChange := ""
		if e.Action == model.AuditApplied {
			riskChange = fmt.Sprintf("%s -> %s", e.OldRisk, e.NewRisk)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.Action,
			e.Correction.Location,
			e.Field,
			e.OldValue,
			e.NewValue,
			riskChange,
			truncate(e.Reason, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
