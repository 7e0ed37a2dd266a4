package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityAssessment_Band(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  string
	}{
		{100, "good"},
		{80, "good"},
		{79, "fair"},
		{60, "fair"},
		{59, "poor"},
		{0, "poor"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityAssessment{QualityScore: tt.score}.Band(), "score %d", tt.score)
	}
}

func TestBatchStatus_Decided(t *testing.T) {
	t.Parallel()

	assert.False(t, BatchNone.Decided())
	assert.False(t, BatchPending.Decided())
	assert.True(t, BatchApplied.Decided())
	assert.True(t, BatchDiscarded.Decided())
}
