package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/ingest"
	"github.com/sells-group/groundwater-cli/internal/workspace"
)

var importName string

var importCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Import a sampling upload as a new dataset",
	Long:  "Parses a CSV or XLSX upload in the template layout, scores every sample and stores it as a new dataset.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		format, err := ingest.FormatFromPath(path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		name := importName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		res, err := env.Workspace.Import(ctx, name, f, format)
		if err != nil {
			return err
		}
		zap.L().Info("import complete", zap.String("command", "import"), zap.String("dataset_id", res.Dataset.ID))
		printImportResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importName, "name", "", "dataset name (default: file name)")
	rootCmd.AddCommand(importCmd)
}

// printImportResult writes a short import report to w.
func printImportResult(w io.Writer, res *workspace.ImportResult) {
	_, _ = fmt.Fprintf(w, "Dataset %s (%s): %d samples imported\n", res.Dataset.ID, res.Dataset.Name, res.Dataset.SampleCount)
	if len(res.Ignored) > 0 {
		_, _ = fmt.Fprintf(w, "Ignored columns: %s\n", strings.Join(res.Ignored, ", "))
	}
	for _, e := range res.RowErrors {
		_, _ = fmt.Fprintf(w, "  skipped %s\n", e.Error())
	}
	for _, e := range res.ScoreErrors {
		_, _ = fmt.Fprintf(w, "  unscored %s\n", e.Error())
	}
}
