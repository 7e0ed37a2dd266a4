package ingest

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/groundwater-cli/internal/risk"
)

// templateSite is one example row of the upload template.
type templateSite struct {
	location string
	lat, lng float64
	metals   map[string]float64
	date     string
}

var templateSites = []templateSite{
	{"Delhi Industrial Zone", 28.6139, 77.2090, map[string]float64{
		"Pb": 0.012, "As": 0.015, "Cd": 0.004, "Cr": 0.065, "Hg": 0.0012,
		"Fe": 0.35, "Mn": 0.12, "Zn": 3.2, "Cu": 2.1, "Ni": 0.025,
	}, "2024-01-15"},
	{"Mumbai Coastal Area", 19.0760, 72.8777, map[string]float64{
		"Pb": 0.008, "As": 0.006, "Cd": 0.002, "Cr": 0.032, "Hg": 0.0008,
		"Fe": 0.18, "Mn": 0.06, "Zn": 1.8, "Cu": 1.2, "Ni": 0.015,
	}, "2024-01-16"},
	{"Chennai Mining District", 13.0827, 80.2707, map[string]float64{
		"Pb": 0.025, "As": 0.032, "Cd": 0.008, "Cr": 0.095, "Hg": 0.0025,
		"Fe": 0.68, "Mn": 0.22, "Zn": 4.5, "Cu": 3.2, "Ni": 0.045,
	}, "2024-01-17"},
	{"Kolkata Industrial Belt", 22.5726, 88.3639, map[string]float64{
		"Pb": 0.018, "As": 0.028, "Cd": 0.006, "Cr": 0.078, "Hg": 0.0018,
		"Fe": 0.45, "Mn": 0.15, "Zn": 2.8, "Cu": 2.5, "Ni": 0.032,
	}, "2024-01-18"},
	{"Bangalore Tech Hub", 12.9716, 77.5946, map[string]float64{
		"Pb": 0.005, "As": 0.004, "Cd": 0.001, "Cr": 0.025, "Hg": 0.0005,
		"Fe": 0.12, "Mn": 0.04, "Zn": 1.2, "Cu": 0.8, "Ni": 0.012,
	}, "2024-01-19"},
}

// TemplateHeader returns the upload column headers for the default metals.
func TemplateHeader() []string {
	header := []string{"Location/Site Name", "Latitude", "Longitude"}
	for _, m := range risk.Metals(risk.DefaultStandards()) {
		header = append(header, m+" (mg/L)")
	}
	return append(header, "Sampling Date")
}

// TemplateRows returns the header followed by the example rows.
func TemplateRows() [][]string {
	metals := risk.Metals(risk.DefaultStandards())
	rows := [][]string{TemplateHeader()}
	for _, s := range templateSites {
		row := []string{s.location, formatNum(s.lat), formatNum(s.lng)}
		for _, m := range metals {
			row = append(row, formatNum(s.metals[m]))
		}
		rows = append(rows, append(row, s.date))
	}
	return rows
}

// WriteTemplate writes the upload template in the given format.
func WriteTemplate(w io.Writer, format Format) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(TemplateRows()); err != nil {
			return eris.Wrap(err, "ingest: write csv template")
		}
		return nil
	case FormatXLSX:
		return writeXLSXTemplate(w)
	default:
		return eris.Errorf("ingest: unsupported format %q", format)
	}
}

func writeXLSXTemplate(w io.Writer) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Samples")
	if err != nil {
		return eris.Wrap(err, "ingest: add sheet")
	}
	for i, record := range TemplateRows() {
		row := sheet.AddRow()
		for j, v := range record {
			cell := row.AddCell()
			// Numeric columns are everything between the location and the date.
			if i > 0 && j > 0 && j < len(record)-1 {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(n)
					continue
				}
			}
			cell.SetString(v)
		}
	}
	return eris.Wrap(f.Write(w), "ingest: write xlsx template")
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
