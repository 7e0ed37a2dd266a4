// Package ingest reads groundwater sampling uploads (CSV or XLSX) into
// samples and writes the blank upload template.
package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/risk"
)

// Format is an upload file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// RowError describes a data row that was skipped.
type RowError struct {
	Row    int    `json:"row"` // spreadsheet row number, header is row 1
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, column %q (%q): %s", e.Row, e.Column, e.Value, e.Reason)
}

// Result holds the parsed samples and the rows that were skipped.
type Result struct {
	Samples   []model.Sample
	RowErrors []*RowError
	// Ignored lists header cells that matched no known column.
	Ignored []string
}

// Reader parses uploads against a metal standards table.
type Reader struct {
	standards []risk.Standard
	newID     func() string
}

// NewReader creates a Reader. Metal columns are matched against stds.
func NewReader(stds []risk.Standard) *Reader {
	return &Reader{standards: stds, newID: uuid.NewString}
}

// Read parses an upload in the given format.
func (rd *Reader) Read(ctx context.Context, r io.Reader, format Format) (*Result, error) {
	var (
		rows <-chan []string
		errs <-chan error
	)
	switch format {
	case FormatCSV:
		rows, errs = streamCSV(ctx, r)
	case FormatXLSX:
		rows, errs = streamXLSX(ctx, r)
	default:
		return nil, eris.Errorf("ingest: unsupported format %q", format)
	}

	res, err := rd.parse(rows)
	// Drain so the producer can exit.
	for range rows {
	}
	if streamErr := <-errs; streamErr != nil {
		return nil, eris.Wrap(streamErr, "ingest: read upload")
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("ingest: upload parsed",
		zap.String("format", string(format)),
		zap.Int("samples", len(res.Samples)),
		zap.Int("row_errors", len(res.RowErrors)),
	)
	return res, nil
}

type columnKind int

const (
	colIgnored columnKind = iota
	colLocation
	colLatitude
	colLongitude
	colDate
	colMetal
)

type column struct {
	kind   columnKind
	header string
	metal  string
}

func (rd *Reader) parse(rows <-chan []string) (*Result, error) {
	header, ok := <-rows
	if !ok {
		return nil, eris.New("ingest: upload is empty")
	}

	res := &Result{Samples: []model.Sample{}}
	cols := make([]column, len(header))
	hasLocation := false
	for i, h := range header {
		cols[i] = rd.classify(h)
		switch cols[i].kind {
		case colLocation:
			hasLocation = true
		case colIgnored:
			if h != "" {
				res.Ignored = append(res.Ignored, h)
			}
		}
	}
	if !hasLocation {
		return nil, eris.New("ingest: no location column in header")
	}

	rowNum := 1
	for record := range rows {
		rowNum++
		if blank(record) {
			continue
		}
		s, rerr := rd.parseRow(cols, record, rowNum)
		if rerr != nil {
			res.RowErrors = append(res.RowErrors, rerr)
			continue
		}
		res.Samples = append(res.Samples, s)
	}
	return res, nil
}

func (rd *Reader) parseRow(cols []column, record []string, rowNum int) (model.Sample, *RowError) {
	s := model.Sample{ID: rd.newID(), Concentrations: map[string]float64{}}
	rowErr := func(c column, value, reason string) *RowError {
		return &RowError{Row: rowNum, Column: c.header, Value: value, Reason: reason}
	}

	for i, c := range cols {
		if i >= len(record) || record[i] == "" {
			continue
		}
		v := record[i]
		switch c.kind {
		case colLocation:
			s.Location = norm.NFC.String(strings.TrimSpace(v))
		case colLatitude, colLongitude:
			f, ok := number(v)
			if !ok {
				return s, rowErr(c, v, "not a number")
			}
			limit := 90.0
			if c.kind == colLongitude {
				limit = 180
			}
			if math.Abs(f) > limit {
				return s, rowErr(c, v, "coordinate out of range")
			}
			if c.kind == colLatitude {
				s.Latitude = model.Float(f)
			} else {
				s.Longitude = model.Float(f)
			}
		case colDate:
			t, ok := parseDate(v)
			if !ok {
				return s, rowErr(c, v, "unrecognized date")
			}
			s.SampledAt = t
		case colMetal:
			f, ok := number(v)
			if !ok {
				return s, rowErr(c, v, "not a number")
			}
			s.Concentrations[c.metal] = f
		}
	}

	if s.Location == "" {
		return s, &RowError{Row: rowNum, Reason: "missing location"}
	}
	if (s.Latitude == nil) != (s.Longitude == nil) {
		return s, &RowError{Row: rowNum, Reason: "latitude and longitude must be given together"}
	}
	return s, nil
}

// classify maps a header cell to a column. Matching ignores case, spacing
// and a trailing unit.
func (rd *Reader) classify(header string) column {
	c := column{header: header}
	name, unit := splitUnit(header)
	key := strings.ToLower(strings.Join(strings.Fields(name), " "))

	switch key {
	case "location/site name", "location", "site", "site name", "location name", "location/site":
		c.kind = colLocation
		return c
	case "latitude", "lat":
		c.kind = colLatitude
		return c
	case "longitude", "long", "lng", "lon":
		c.kind = colLongitude
		return c
	case "sampling date", "sample date", "date", "sampled at", "sampling_date":
		c.kind = colDate
		return c
	}

	token := strings.TrimSpace(name)
	if sym, ok := risk.LookupMetal(rd.standards, token); ok {
		c.kind, c.metal = colMetal, sym
		return c
	}
	// Unknown metals are carried when the column declares a concentration unit.
	if strings.EqualFold(unit, "mg/l") && token != "" {
		c.kind, c.metal = colMetal, token
	}
	return c
}

// splitUnit splits "Pb (mg/L)" into "Pb" and "mg/L".
func splitUnit(header string) (string, string) {
	h := strings.TrimSpace(header)
	open := strings.LastIndexByte(h, '(')
	if open < 0 || !strings.HasSuffix(h, ")") {
		return h, ""
	}
	return strings.TrimSpace(h[:open]), strings.TrimSpace(h[open+1 : len(h)-1])
}

func number(v string) (float64, bool) {
	f, err := cast.ToFloat64E(strings.TrimSpace(v))
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.DateOnly,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	"01-02-06",
}

func parseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := cast.ToTimeE(v); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func blank(record []string) bool {
	for _, v := range record {
		if v != "" {
			return false
		}
	}
	return true
}
