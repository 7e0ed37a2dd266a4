package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskTier_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, RiskSafe.Valid())
	assert.True(t, RiskModerate.Valid())
	assert.True(t, RiskHigh.Valid())
	assert.False(t, RiskUnscored.Valid())
	assert.False(t, RiskTier("critical").Valid())
}

func TestSample_Clone(t *testing.T) {
	t.Parallel()

	orig := Sample{
		ID:             "s1",
		Location:       "Well A",
		Latitude:       Float(28.6),
		Longitude:      Float(77.2),
		Concentrations: map[string]float64{"Pb": 0.01},
	}
	cp := orig.Clone()
	*cp.Latitude = 1
	cp.Concentrations["Pb"] = 0.5

	assert.Equal(t, 28.6, *orig.Latitude)
	assert.Equal(t, 0.01, orig.Concentrations["Pb"])
	assert.Equal(t, 77.2, *cp.Longitude)
}

func TestCloneSamples(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CloneSamples(nil))

	in := []Sample{{Location: "A", Concentrations: map[string]float64{"As": 0.02}}}
	out := CloneSamples(in)
	require.Len(t, out, 1)
	out[0].Concentrations["As"] = 1
	assert.Equal(t, 0.02, in[0].Concentrations["As"])
}

func TestSample_Point(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Sample{Latitude: Float(10)}.Point())

	p := Sample{Latitude: Float(13.08), Longitude: Float(80.27)}.Point()
	require.NotNil(t, p)
	assert.Equal(t, 4326, p.SRID())
	assert.Equal(t, 80.27, p.X())
	assert.Equal(t, 13.08, p.Y())
}
