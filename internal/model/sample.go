package model

import (
	"maps"
	"time"

	"github.com/twpayne/go-geom"
)

// RiskTier is the contamination tier derived from a sample's HMPI.
type RiskTier string

// Risk tier values.
const (
	RiskUnscored RiskTier = ""
	RiskSafe     RiskTier = "safe"
	RiskModerate RiskTier = "moderate_risk"
	RiskHigh     RiskTier = "high_risk"
)

// Valid reports whether t is one of the scored tiers.
func (t RiskTier) Valid() bool {
	switch t {
	case RiskSafe, RiskModerate, RiskHigh:
		return true
	default:
		return false
	}
}

// Sample is one field measurement at a groundwater site.
type Sample struct {
	ID             string             `json:"id"`
	DatasetID      string             `json:"dataset_id,omitempty"`
	Location       string             `json:"location"`
	Latitude       *float64           `json:"latitude,omitempty"`
	Longitude      *float64           `json:"longitude,omitempty"`
	Concentrations map[string]float64 `json:"concentrations"` // metal symbol → mg/L
	SampledAt      time.Time          `json:"sampling_date"`
	HMPI           float64            `json:"hmpi_score"`
	Risk           RiskTier           `json:"risk_classification"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (s Sample) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Point returns the sample location as a WGS84 point, or nil when the
// sample has no coordinates.
func (s Sample) Point() *geom.Point {
	if !s.HasCoordinates() {
		return nil
	}
	return geom.NewPointFlat(geom.XY, []float64{*s.Longitude, *s.Latitude}).SetSRID(4326)
}

// Clone returns a deep copy of the sample.
func (s Sample) Clone() Sample {
	out := s
	if s.Latitude != nil {
		lat := *s.Latitude
		out.Latitude = &lat
	}
	if s.Longitude != nil {
		lng := *s.Longitude
		out.Longitude = &lng
	}
	if s.Concentrations != nil {
		out.Concentrations = maps.Clone(s.Concentrations)
	}
	return out
}

// CloneSamples deep-copies a sample slice.
func CloneSamples(samples []Sample) []Sample {
	if samples == nil {
		return nil
	}
	out := make([]Sample, len(samples))
	for i, s := range samples {
		out[i] = s.Clone()
	}
	return out
}

// Float returns a pointer to v. Handy for optional coordinates.
func Float(v float64) *float64 {
	return &v
}
