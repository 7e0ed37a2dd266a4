package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/groundwater-cli/internal/ingest"
)

var (
	templateFormat string
	templateOut    string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the sampling upload template",
	Long:  "Writes the upload template with five example sites, as CSV or XLSX, to a file or stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := ingest.Format(templateFormat)
		if templateOut != "" && !cmd.Flags().Changed("format") {
			if f, err := ingest.FormatFromPath(templateOut); err == nil {
				format = f
			}
		}

		var w io.Writer = cmd.OutOrStdout()
		if templateOut != "" {
			f, err := os.Create(templateOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", templateOut)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return ingest.WriteTemplate(w, format)
	},
}

func init() {
	templateCmd.Flags().StringVar(&templateFormat, "format", "csv", "template format: csv or xlsx")
	templateCmd.Flags().StringVarP(&templateOut, "out", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(templateCmd)
}
