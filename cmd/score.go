package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/risk"
)

var scoreRescore bool

var scoreCmd = &cobra.Command{
	Use:   "score <dataset-id>",
	Short: "Show HMPI scores and the risk summary of a dataset",
	Long:  "Lists each sample's HMPI and risk tier with the dataset summary. With --rescore the samples are scored again against the configured standards table first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := args[0]

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if scoreRescore {
			res, err := env.Workspace.Rescore(ctx, id)
			if err != nil {
				return err
			}
			for _, e := range res.Errors {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "unscored: %s\n", e.Error())
			}
		}

		samples, err := env.Workspace.Samples(ctx, id)
		if err != nil {
			return err
		}
		sum, err := env.Workspace.Summary(ctx, id)
		if err != nil {
			return err
		}
		formatScores(cmd.OutOrStdout(), samples, sum)
		return nil
	},
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List imported datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Workspace.Datasets(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tSAMPLES\tCREATED")
		_, _ = fmt.Fprintln(w, "--\t----\t-------\t-------")
		for _, d := range list {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.ID, d.Name, d.SampleCount, d.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreRescore, "rescore", false, "recompute scores before listing")
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(datasetsCmd)
}

// formatScores writes a per-sample score table followed by the summary.
func formatScores(out io.Writer, samples []model.Sample, sum *risk.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LOCATION\tHMPI\tRISK")
	_, _ = fmt.Fprintln(w, "--------\t----\t----")
	for _, s := range samples {
		hmpi, tier := "-", "unscored"
		if s.Risk.Valid() {
			hmpi, tier = fmt.Sprintf("%.2f", s.HMPI), string(s.Risk)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Location, hmpi, tier)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d samples: %d safe, %d moderate risk, %d high risk, %d unscored\n",
		sum.Total, sum.Tiers[model.RiskSafe], sum.Tiers[model.RiskModerate], sum.Tiers[model.RiskHigh], sum.Unscored)
	_, _ = fmt.Fprintf(out, "HMPI mean %.2f, median %.2f, max %.2f\n", sum.Mean, sum.Median, sum.Max)
}
