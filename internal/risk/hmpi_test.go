package risk

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/groundwater-cli/internal/model"
)

func sample(id string, conc map[string]float64) model.Sample {
	return model.Sample{ID: id, Location: "Site " + id, Concentrations: conc}
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  model.RiskTier
	}{
		{0, model.RiskSafe},
		{99.999, model.RiskSafe},
		{100, model.RiskSafe},
		{100.0001, model.RiskModerate},
		{150, model.RiskModerate},
		{200, model.RiskModerate},
		{200.0001, model.RiskHigh},
		{5000, model.RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.score), "score %v", tt.score)
	}
}

func TestScore_SingleLeadDominates(t *testing.T) {
	m := DefaultModel()
	score, err := m.Score(sample("1", map[string]float64{"Pb": 0.5}))
	require.NoError(t, err)
	// Qpb = 5000, Wpb = 100, ΣW ≈ 1636.87
	assert.InDelta(t, 305.46, score, 0.01)
	assert.Equal(t, model.RiskHigh, Classify(score))
}

func TestScore_AllZeroOrAbsentIsSafe(t *testing.T) {
	m := DefaultModel()

	for _, conc := range []map[string]float64{
		nil,
		{},
		{"Pb": 0, "As": 0, "Cd": 0, "Hg": 0},
	} {
		score, err := m.Score(sample("z", conc))
		require.NoError(t, err)
		assert.LessOrEqual(t, score, 100.0)
		assert.Equal(t, model.RiskSafe, Classify(score))
	}
}

func TestScore_Idempotent(t *testing.T) {
	m := DefaultModel()
	s := sample("1", map[string]float64{
		"Pb": 0.012, "As": 0.015, "Cd": 0.004, "Cr": 0.065, "Hg": 0.0012,
		"Fe": 0.35, "Mn": 0.12, "Zn": 3.2, "Cu": 2.1, "Ni": 0.025,
	})

	first, err := m.Score(s)
	require.NoError(t, err)
	for range 50 {
		again, err := m.Score(s)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(first), math.Float64bits(again))
		assert.Equal(t, Classify(first), Classify(again))
	}
}

func TestScore_UnknownMetalIgnored(t *testing.T) {
	m := DefaultModel()
	withUnknown, err := m.Score(sample("1", map[string]float64{"Pb": 0.01, "U": 9}))
	require.NoError(t, err)
	without, err := m.Score(sample("1", map[string]float64{"Pb": 0.01}))
	require.NoError(t, err)
	assert.Equal(t, without, withUnknown)
}

func TestScore_NegativeConcentrationIsDataError(t *testing.T) {
	m := DefaultModel()
	_, err := m.Score(sample("neg", map[string]float64{"Pb": 0.01, "As": -0.2}))
	require.Error(t, err)

	var de *DataError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "neg", de.SampleID)
	assert.Equal(t, "As", de.Metal)
	assert.Equal(t, -0.2, de.Value)
	assert.Contains(t, err.Error(), "negative concentration")
}

func TestScore_NaNIsDataError(t *testing.T) {
	m := DefaultModel()
	_, err := m.Score(sample("nan", map[string]float64{"Fe": math.NaN()}))
	var de *DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "non-finite concentration", de.Reason)
}

func TestRescore_DoesNotMutateInput(t *testing.T) {
	m := DefaultModel()
	in := sample("1", map[string]float64{"Pb": 0.5})
	out, err := m.Rescore(in)
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, out.Risk)
	assert.Zero(t, in.HMPI)
	assert.Equal(t, model.RiskUnscored, in.Risk)
}

func TestRescore_ErrorLeavesSampleUnscored(t *testing.T) {
	m := DefaultModel()
	in := sample("1", map[string]float64{"Pb": -1})
	in.HMPI = 250
	in.Risk = model.RiskHigh

	out, err := m.Rescore(in)
	require.Error(t, err)
	assert.Zero(t, out.HMPI)
	assert.Equal(t, model.RiskUnscored, out.Risk)
}

func TestScoreAll_ContinuesPastDataErrors(t *testing.T) {
	m := DefaultModel()
	res := m.ScoreAll([]model.Sample{
		sample("a", map[string]float64{"Pb": 0.5}),
		sample("b", map[string]float64{"Cd": -0.001}),
		sample("c", map[string]float64{"Zn": 1}),
	})

	require.Len(t, res.Samples, 3)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "b", res.Errors[0].SampleID)
	assert.Equal(t, model.RiskHigh, res.Samples[0].Risk)
	assert.Equal(t, model.RiskUnscored, res.Samples[1].Risk)
	assert.Equal(t, model.RiskSafe, res.Samples[2].Risk)
}

func TestNewModel_RejectsBadStandards(t *testing.T) {
	_, err := NewModel(nil)
	assert.Error(t, err)

	_, err = NewModel([]Standard{{Metal: "Pb", Limit: 0}})
	assert.ErrorContains(t, err, "limit must be > 0")

	_, err = NewModel([]Standard{{Metal: "Pb", Limit: 1}, {Metal: "Pb", Limit: 2}})
	assert.ErrorContains(t, err, "duplicate metal Pb")
}

func TestLoadStandards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "standards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`standards:
  - metal: Pb
    name: lead
    limit: 0.01
  - metal: As
    name: arsenic
    limit: 0.05
`), 0o644))

	stds, err := LoadStandards(path)
	require.NoError(t, err)
	require.Len(t, stds, 2)
	assert.Equal(t, "As", stds[1].Metal)
	assert.Equal(t, 0.05, stds[1].Limit)

	m, err := NewModel(stds)
	require.NoError(t, err)
	score, err := m.Score(sample("1", map[string]float64{"Pb": 0.01}))
	require.NoError(t, err)
	// Wpb=100, Was=20: 100*100/120
	assert.InDelta(t, 83.333, score, 0.001)
}

func TestLoadStandards_Missing(t *testing.T) {
	_, err := LoadStandards(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "risk: read standards")
}

func TestLookupMetal(t *testing.T) {
	stds := DefaultStandards()

	sym, ok := LookupMetal(stds, "Pb")
	assert.True(t, ok)
	assert.Equal(t, "Pb", sym)

	sym, ok = LookupMetal(stds, "Arsenic")
	assert.True(t, ok)
	assert.Equal(t, "As", sym)

	_, ok = LookupMetal(stds, "pb")
	assert.False(t, ok)
}
