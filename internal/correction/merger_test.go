package correction

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/risk"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testMerger() *Merger {
	m := NewMerger(risk.DefaultModel())
	m.now = func() time.Time { return fixedNow }
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("audit-%d", n)
	}
	return m
}

func scored(t *testing.T, samples ...model.Sample) []model.Sample {
	t.Helper()
	res := risk.DefaultModel().ScoreAll(samples)
	require.Empty(t, res.Errors)
	return res.Samples
}

func dataset(t *testing.T) []model.Sample {
	return scored(t,
		model.Sample{
			ID:             "delhi",
			DatasetID:      "ds1",
			Location:       "Delhi Industrial Zone",
			Latitude:       model.Float(28.7041),
			Longitude:      model.Float(77.1025),
			Concentrations: map[string]float64{"Pb": 0.5, "Cd": 0.002},
		},
		model.Sample{
			ID:             "mumbai",
			DatasetID:      "ds1",
			Location:       "Mumbai Coastal Area",
			Latitude:       model.Float(19.076),
			Longitude:      model.Float(72.8777),
			Concentrations: map[string]float64{"As": 0.004},
		},
	)
}

func batch(corrections ...model.Correction) model.StoredAssessment {
	return model.StoredAssessment{
		ID:         "as1",
		DatasetID:  "ds1",
		Status:     model.BatchPending,
		Assessment: model.QualityAssessment{DataCorrections: corrections},
	}
}

func TestApply_DelhiAndNowhere(t *testing.T) {
	samples := dataset(t)
	before := model.CloneSamples(samples)

	res, err := testMerger().Apply(samples, batch(
		model.Correction{Location: "Delhi Industrial Zone", Issue: "Pb reading looks like a unit error", SuggestedValue: "0.005", Confidence: model.ConfidenceHigh},
		model.Correction{Location: "Nowhere", Issue: "Pb too high", SuggestedValue: "0.01", Confidence: model.ConfidenceLow},
	))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, "Nowhere", res.Skips[0].Correction.Location)
	assert.Equal(t, []string{"delhi"}, res.ChangedIDs)

	// Input untouched.
	assert.Equal(t, before, samples)

	delhi := res.Samples[0]
	assert.Equal(t, 0.005, delhi.Concentrations["Pb"])
	wantHMPI, err := risk.DefaultModel().Score(delhi)
	require.NoError(t, err)
	assert.Equal(t, wantHMPI, delhi.HMPI)
	assert.Equal(t, risk.Classify(wantHMPI), delhi.Risk)
	assert.Less(t, delhi.HMPI, before[0].HMPI)

	assert.Empty(t, cmp.Diff(before[1], res.Samples[1]))

	want := []model.AuditEntry{
		{
			ID:           "audit-1",
			DatasetID:    "ds1",
			AssessmentID: "as1",
			Action:       model.AuditApplied,
			Correction:   model.Correction{Location: "Delhi Industrial Zone", Issue: "Pb reading looks like a unit error", SuggestedValue: "0.005", Confidence: model.ConfidenceHigh},
			SampleID:     "delhi",
			Field:        "Pb",
			OldValue:     "0.5",
			NewValue:     "0.005",
			OldHMPI:      before[0].HMPI,
			NewHMPI:      delhi.HMPI,
			OldRisk:      model.RiskHigh,
			NewRisk:      delhi.Risk,
			CreatedAt:    fixedNow,
		},
		{
			ID:           "audit-2",
			DatasetID:    "ds1",
			AssessmentID: "as1",
			Action:       model.AuditSkipped,
			Correction:   model.Correction{Location: "Nowhere", Issue: "Pb too high", SuggestedValue: "0.01", Confidence: model.ConfidenceLow},
			Reason:       `no sample at location "Nowhere"`,
			CreatedAt:    fixedNow,
		},
	}
	if diff := cmp.Diff(want, res.Audit); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_LocationMatchIsCaseSensitive(t *testing.T) {
	res, err := testMerger().Apply(dataset(t), batch(
		model.Correction{Location: "delhi industrial zone", Issue: "Pb", SuggestedValue: "0.01"},
	))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Skipped)
}

func TestApply_Interpretation(t *testing.T) {
	tests := []struct {
		name     string
		issue    string
		value    string
		field    []string
		newValue []string
		reason   string
	}{
		{"metal by name", "Lead concentration implausible", "0.02 mg/L", []string{"Pb"}, []string{"0.02"}, ""},
		{"absent metal added", "Mercury missing", "0.0004", []string{"Hg"}, []string{"0.0004"}, ""},
		{"symbol and name agree", "Lead (Pb) off by 100x", "0.005", []string{"Pb"}, []string{"0.005"}, ""},
		{"latitude", "Latitude has swapped digits", "28.6139", []string{"latitude"}, []string{"28.6139"}, ""},
		{"longitude", "Longitude sign", "77.209°", []string{"longitude"}, []string{"77.209"}, ""},
		{"coordinate pair", "Coordinates point into the sea", "(28.61, 77.20)", []string{"latitude", "longitude"}, []string{"28.61", "77.2"}, ""},
		{"rename", "Site name misspelled", "Delhi Industrial Zone North", []string{"location"}, []string{"Delhi Industrial Zone North"}, ""},
		{"sentence-initial As is prose", "As reported by the lab, the Pb reading is a unit error", "0.01", []string{"Pb"}, []string{"0.01"}, ""},
		{"As after a full stop", "Unit error. As noted, Pb is ten times too high", "0.01", []string{"Pb"}, []string{"0.01"}, ""},
		{"arsenic alone at sentence start", "As exceeds the limit fivefold", "0.002", []string{"As"}, []string{"0.002"}, ""},

		{"two metals", "Pb and As both look wrong", "0.01", nil, nil, "more than one metal"},
		{"metal and coordinate", "Pb value and latitude inconsistent", "0.01", nil, nil, "more than one kind"},
		{"no field", "Value looks suspicious", "0.01", nil, nil, "does not name"},
		{"negative concentration", "Cd", "-0.01", nil, nil, "non-negative"},
		{"text concentration", "Cd", "about right", nil, nil, "non-negative"},
		{"latitude out of range", "latitude", "128.1", nil, nil, "out of range"},
		{"bare coordinate", "coordinates wrong", "28.6", nil, nil, "latitude or longitude"},
		{"rename collision", "rename", "Mumbai Coastal Area", nil, nil, "already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := testMerger().Apply(dataset(t), batch(model.Correction{
				Location:       "Delhi Industrial Zone",
				Issue:          tt.issue,
				SuggestedValue: tt.value,
			}))
			require.NoError(t, err)

			if tt.reason != "" {
				assert.Equal(t, 0, res.Applied)
				require.Len(t, res.Skips, 1)
				assert.Contains(t, res.Skips[0].Reason, tt.reason)
				return
			}

			assert.Equal(t, 1, res.Applied)
			require.Len(t, res.Audit, len(tt.field))
			for i, e := range res.Audit {
				assert.Equal(t, tt.field[i], e.Field)
				assert.Equal(t, tt.newValue[i], e.NewValue)
				assert.Equal(t, "delhi", e.SampleID)
			}
		})
	}
}

func TestApply_CorrectionsAppliedInOrder(t *testing.T) {
	res, err := testMerger().Apply(dataset(t), batch(
		model.Correction{Location: "Delhi Industrial Zone", Issue: "rename site", SuggestedValue: "Delhi North"},
		model.Correction{Location: "Delhi North", Issue: "Pb", SuggestedValue: "0.001"},
		model.Correction{Location: "Delhi Industrial Zone", Issue: "Cd", SuggestedValue: "0.001"},
	))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "Delhi North", res.Samples[0].Location)
	assert.Equal(t, 0.001, res.Samples[0].Concentrations["Pb"])
	assert.Equal(t, model.RiskSafe, res.Samples[0].Risk)
	assert.Equal(t, []string{"delhi"}, res.ChangedIDs)
	require.Len(t, res.Changed(), 1)
}

func TestApply_DuplicateLocationIsAmbiguous(t *testing.T) {
	samples := dataset(t)
	dup := samples[0].Clone()
	dup.ID = "delhi-2"
	samples = append(samples, dup)

	res, err := testMerger().Apply(samples, batch(
		model.Correction{Location: "Delhi Industrial Zone", Issue: "Pb", SuggestedValue: "0.01"},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, res.Skips[0].Reason, "matches 2 samples")
	assert.Contains(t, res.Skips[0].Error(), "Delhi Industrial Zone")
}

func TestApply_DecidedBatchRejected(t *testing.T) {
	for _, status := range []model.BatchStatus{model.BatchApplied, model.BatchDiscarded} {
		b := batch(model.Correction{Location: "Delhi Industrial Zone", Issue: "Pb", SuggestedValue: "0.01"})
		b.Status = status

		_, err := testMerger().Apply(dataset(t), b)
		assert.ErrorIs(t, err, ErrBatchDecided, status)
	}
}

func TestDiscard(t *testing.T) {
	b := batch(
		model.Correction{Location: "Delhi Industrial Zone", Issue: "Pb", SuggestedValue: "0.01"},
		model.Correction{Location: "Nowhere", Issue: "As", SuggestedValue: "0.01"},
	)

	entries := testMerger().Discard(b)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, model.AuditDiscarded, e.Action)
		assert.Empty(t, e.SampleID)
	}
	if diff := cmp.Diff(b.Assessment.DataCorrections[1], entries[1].Correction); diff != "" {
		t.Errorf("correction mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscard_AfterApplyIsNoop(t *testing.T) {
	b := batch(model.Correction{Location: "Delhi Industrial Zone", Issue: "Pb", SuggestedValue: "0.01"})
	b.Status = model.BatchApplied
	assert.Empty(t, testMerger().Discard(b))
}

func TestApply_AuditIgnoringIDs(t *testing.T) {
	res, err := NewMerger(risk.DefaultModel()).Apply(dataset(t), batch(
		model.Correction{Location: "Mumbai Coastal Area", Issue: "Latitude", SuggestedValue: "19.1"},
	))
	require.NoError(t, err)

	want := []model.AuditEntry{{
		DatasetID:    "ds1",
		AssessmentID: "as1",
		Action:       model.AuditApplied,
		Correction:   model.Correction{Location: "Mumbai Coastal Area", Issue: "Latitude", SuggestedValue: "19.1"},
		SampleID:     "mumbai",
		Field:        FieldLatitude,
		OldValue:     "19.076",
		NewValue:     "19.1",
		OldHMPI:      res.Samples[1].HMPI,
		NewHMPI:      res.Samples[1].HMPI,
		OldRisk:      model.RiskSafe,
		NewRisk:      model.RiskSafe,
	}}
	opts := cmpopts.IgnoreFields(model.AuditEntry{}, "ID", "CreatedAt")
	if diff := cmp.Diff(want, res.Audit, opts); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
}

func TestIssueTokens(t *testing.T) {
	got := issueTokens("As noted: Pb, as before. In situ")
	want := []issueToken{
		{"As", true}, {"noted", false}, {"Pb", true}, {"as", false},
		{"before", false}, {"In", true}, {"situ", false},
	}
	assert.Equal(t, want, got)
}
