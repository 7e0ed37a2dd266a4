// Package risk computes the Heavy Metal Pollution Index (HMPI) of a
// groundwater sample and classifies it into a risk tier.
package risk

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/sells-group/groundwater-cli/internal/model"
)

// Tier thresholds. Both bounds are inclusive on the lower tier.
const (
	SafeMax     = 100.0
	ModerateMax = 200.0
)

// DataError reports a sample whose concentrations violate scoring
// preconditions. It is fatal to that sample only.
type DataError struct {
	SampleID string
	Location string
	Metal    string
	Value    float64
	Reason   string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("risk: sample %q (%s): %s %s=%v", e.SampleID, e.Location, e.Reason, e.Metal, e.Value)
}

// Model scores samples against a fixed standards table. A Model is
// immutable after construction and safe for concurrent use.
type Model struct {
	standards   []Standard
	weights     []float64
	totalWeight float64
}

// NewModel builds a Model from a standards table.
func NewModel(standards []Standard) (*Model, error) {
	if err := ValidateStandards(standards); err != nil {
		return nil, err
	}
	m := &Model{
		standards: append([]Standard(nil), standards...),
		weights:   make([]float64, len(standards)),
	}
	for i, s := range m.standards {
		w := 1 / s.Limit
		m.weights[i] = w
		m.totalWeight += w
	}
	return m, nil
}

// DefaultModel returns a Model over DefaultStandards.
func DefaultModel() *Model {
	m, err := NewModel(DefaultStandards())
	if err != nil {
		panic(err) // default table is static
	}
	return m
}

// Standards returns a copy of the model's standards table.
func (m *Model) Standards() []Standard {
	return append([]Standard(nil), m.standards...)
}

// Score computes the HMPI of a sample:
//
//	HPI = Σ(Wi·Qi) / ΣWi,  Wi = 1/Si,  Qi = 100·Mi/Si
//
// summed over every metal in the table. Absent metals contribute zero.
// Metals outside the table are checked but do not contribute.
func (m *Model) Score(s model.Sample) (float64, error) {
	for _, metal := range slices.Sorted(maps.Keys(s.Concentrations)) {
		if err := checkConcentration(s, metal, s.Concentrations[metal]); err != nil {
			return 0, err
		}
	}

	// Table order keeps the floating-point sum identical across calls.
	var sum float64
	for i, std := range m.standards {
		c, ok := s.Concentrations[std.Metal]
		if !ok {
			continue
		}
		q := 100 * c / std.Limit
		sum += m.weights[i] * q
	}
	return sum / m.totalWeight, nil
}

// Classify maps an HMPI score to its risk tier.
func Classify(score float64) model.RiskTier {
	switch {
	case score <= SafeMax:
		return model.RiskSafe
	case score <= ModerateMax:
		return model.RiskModerate
	default:
		return model.RiskHigh
	}
}

// Rescore returns a copy of s with HMPI and risk tier recomputed. On a
// DataError the copy is left unscored.
func (m *Model) Rescore(s model.Sample) (model.Sample, error) {
	out := s.Clone()
	score, err := m.Score(out)
	if err != nil {
		out.HMPI = 0
		out.Risk = model.RiskUnscored
		return out, err
	}
	out.HMPI = score
	out.Risk = Classify(score)
	return out, nil
}

// BatchResult is the outcome of scoring a dataset.
type BatchResult struct {
	Samples []model.Sample
	Errors  []*DataError
}

// ScoreAll rescores every sample. A DataError on one sample is recorded
// and the rest of the batch continues.
func (m *Model) ScoreAll(samples []model.Sample) BatchResult {
	res := BatchResult{Samples: make([]model.Sample, len(samples))}
	for i, s := range samples {
		scored, err := m.Rescore(s)
		res.Samples[i] = scored
		if err != nil {
			de, ok := err.(*DataError)
			if !ok {
				de = &DataError{SampleID: s.ID, Location: s.Location, Reason: err.Error()}
			}
			res.Errors = append(res.Errors, de)
		}
	}
	return res
}

func checkConcentration(s model.Sample, metal string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return &DataError{SampleID: s.ID, Location: s.Location, Metal: metal, Value: v, Reason: "non-finite concentration"}
	case v < 0:
		return &DataError{SampleID: s.ID, Location: s.Location, Metal: metal, Value: v, Reason: "negative concentration"}
	}
	return nil
}
