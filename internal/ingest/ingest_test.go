package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/risk"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func readCSV(t *testing.T, content string) *Result {
	t.Helper()
	res, err := NewReader(risk.DefaultStandards()).Read(context.Background(), strings.NewReader(content), FormatCSV)
	require.NoError(t, err)
	return res
}

func TestTemplate_CSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, FormatCSV))

	assert.True(t, strings.HasPrefix(buf.String(),
		"Location/Site Name,Latitude,Longitude,Pb (mg/L),As (mg/L),Cd (mg/L),Cr (mg/L),Hg (mg/L),Fe (mg/L),Mn (mg/L),Zn (mg/L),Cu (mg/L),Ni (mg/L),Sampling Date\n"))

	res := readCSV(t, buf.String())
	require.Len(t, res.Samples, 5)
	assert.Empty(t, res.RowErrors)
	assert.Empty(t, res.Ignored)

	delhi := res.Samples[0]
	assert.Equal(t, "Delhi Industrial Zone", delhi.Location)
	require.True(t, delhi.HasCoordinates())
	assert.Equal(t, 28.6139, *delhi.Latitude)
	assert.Equal(t, 77.209, *delhi.Longitude)
	assert.Equal(t, 0.012, delhi.Concentrations["Pb"])
	assert.Len(t, delhi.Concentrations, 10)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), delhi.SampledAt)
	assert.NotEmpty(t, delhi.ID)

	assert.Equal(t, "Bangalore Tech Hub", res.Samples[4].Location)
}

func TestTemplate_XLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, FormatXLSX))

	res, err := NewReader(risk.DefaultStandards()).Read(context.Background(), &buf, FormatXLSX)
	require.NoError(t, err)
	require.Len(t, res.Samples, 5)
	assert.Empty(t, res.RowErrors)

	chennai := res.Samples[2]
	assert.Equal(t, "Chennai Mining District", chennai.Location)
	assert.InDelta(t, 0.025, chennai.Concentrations["Pb"], 1e-12)
	assert.InDelta(t, 13.0827, *chennai.Latitude, 1e-12)
	assert.Equal(t, time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), chennai.SampledAt)
}

func TestRead_HeaderVariants(t *testing.T) {
	res := readCSV(t, "site name, lat ,LONGITUDE,Lead,Sr (mg/L),Notes,date\n"+
		"Well 7,12.5,77.1,0.02,0.4,near road,15/01/2024\n")

	require.Len(t, res.Samples, 1)
	s := res.Samples[0]
	assert.Equal(t, "Well 7", s.Location)
	assert.Equal(t, map[string]float64{"Pb": 0.02, "Sr": 0.4}, s.Concentrations)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), s.SampledAt)
	assert.Equal(t, []string{"Notes"}, res.Ignored)
}

func TestRead_BlankCellsAreAbsentMetals(t *testing.T) {
	res := readCSV(t, "Location,Pb (mg/L),As (mg/L)\nSite A,,0.003\n")

	require.Len(t, res.Samples, 1)
	assert.Equal(t, map[string]float64{"As": 0.003}, res.Samples[0].Concentrations)
	assert.False(t, res.Samples[0].HasCoordinates())
}

func TestRead_RowErrors(t *testing.T) {
	res := readCSV(t, strings.Join([]string{
		"Location,Latitude,Longitude,Pb (mg/L)",
		"Good,10,20,0.01",
		"BadNumber,10,20,high",
		",10,20,0.01",
		",,,",
		"HalfCoords,10,,0.01",
		"FarNorth,95,20,0.01",
		"Negative,10,20,-0.5",
	}, "\n"))

	require.Len(t, res.Samples, 2)
	assert.Equal(t, "Good", res.Samples[0].Location)
	// Negative values are a scoring concern and pass through ingest.
	assert.Equal(t, -0.5, res.Samples[1].Concentrations["Pb"])

	require.Len(t, res.RowErrors, 4)
	assert.Equal(t, 3, res.RowErrors[0].Row)
	assert.Equal(t, "Pb (mg/L)", res.RowErrors[0].Column)
	assert.Equal(t, "not a number", res.RowErrors[0].Reason)
	assert.Equal(t, "missing location", res.RowErrors[1].Reason)
	assert.Equal(t, 6, res.RowErrors[2].Row)
	assert.Contains(t, res.RowErrors[2].Reason, "together")
	assert.Equal(t, "coordinate out of range", res.RowErrors[3].Reason)
	assert.Contains(t, res.RowErrors[0].Error(), "row 3")
}

func TestRead_NormalizesLocation(t *testing.T) {
	res := readCSV(t, "Location\nCafe\u0301 Well\n")
	require.Len(t, res.Samples, 1)
	assert.Equal(t, "Caf\u00e9 Well", res.Samples[0].Location)
}

func TestRead_NoLocationColumn(t *testing.T) {
	_, err := NewReader(risk.DefaultStandards()).Read(context.Background(),
		strings.NewReader("Pb (mg/L)\n0.1\n"), FormatCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no location column")
}

func TestRead_Empty(t *testing.T) {
	_, err := NewReader(risk.DefaultStandards()).Read(context.Background(), strings.NewReader(""), FormatCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestRead_BadWorkbook(t *testing.T) {
	_, err := NewReader(risk.DefaultStandards()).Read(context.Background(),
		strings.NewReader("not a zip"), FormatXLSX)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx")
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("uploads/Survey.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = FormatFromPath("survey.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = FormatFromPath("survey.pdf")
	assert.Error(t, err)
}
