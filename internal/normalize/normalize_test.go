package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/groundwater-cli/internal/model"
)

func TestFirstObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `Here you go: {"a":1} hope that helps {"b":2}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`, true},
		{"braces in strings", `{"note":"use } and { freely","x":"\"}"}`, `{"note":"use } and { freely","x":"\"}"}`, true},
		{"unclosed then closed", `{ oops {"a":1}`, `{"a":1}`, true},
		{"no object", "I think the data looks fine overall.", "", false},
		{"never closed", `{"a": 1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_ValidationProseFallback(t *testing.T) {
	raw := "I think the data looks fine overall."
	p := Extract(raw, KindValidation)

	require.NotNil(t, p.Validation)
	assert.True(t, p.Fallback)
	assert.NotEmpty(t, p.Reason)

	qa := p.Validation
	assert.Equal(t, 75, qa.QualityScore)
	assert.Equal(t, raw, qa.OverallAssessment)
	assert.Empty(t, qa.IssuesFound)
	assert.Empty(t, qa.Recommendations)
	assert.Empty(t, qa.DataCorrections)
	assert.Equal(t, model.Partial, qa.ComplianceStatus.WHO)
	assert.Equal(t, model.Partial, qa.ComplianceStatus.Indian)
	assert.True(t, qa.Fallback)
}

func TestExtract_ValidationStructured(t *testing.T) {
	raw := "Sure! Here is my analysis:\n```json\n" + `{
  "quality_score": 82,
  "overall_assessment": " Mostly clean data. ",
  "issues_found": ["Delhi lead value looks like a unit error", ""],
  "recommendations": ["Re-sample Delhi"],
  "compliance_status": {"who_standards": "Non-Compliant", "indian_standards": "partially compliant"},
  "data_corrections": [
    {"location": "Delhi", "issue": "Pb value too high", "suggested_value": 0.05, "confidence": "HIGH"},
    {"location": "", "issue": "no site", "suggested_value": "1", "confidence": "low"},
    {"location": "Mumbai", "issue": "As", "suggested_value": "0.01", "confidence": "certain"}
  ]
}` + "\n```\nLet me know if you need more."

	p := Extract(raw, KindValidation)
	require.False(t, p.Fallback, p.Reason)
	qa := p.Validation

	assert.Equal(t, 82, qa.QualityScore)
	assert.Equal(t, "Mostly clean data.", qa.OverallAssessment)
	assert.Equal(t, []string{"Delhi lead value looks like a unit error"}, qa.IssuesFound)
	assert.Equal(t, []string{"Re-sample Delhi"}, qa.Recommendations)
	assert.Equal(t, model.NonCompliant, qa.ComplianceStatus.WHO)
	assert.Equal(t, model.Partial, qa.ComplianceStatus.Indian)

	require.Len(t, qa.DataCorrections, 2)
	assert.Equal(t, model.Correction{
		Location:       "Delhi",
		Issue:          "Pb value too high",
		SuggestedValue: "0.05",
		Confidence:     model.ConfidenceHigh,
	}, qa.DataCorrections[0])
	assert.Equal(t, model.ConfidenceLow, qa.DataCorrections[1].Confidence)
}

func TestExtract_ValidationScoreClamp(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"quality_score": 140, "overall_assessment": "x"}`, 100},
		{`{"quality_score": -3, "overall_assessment": "x"}`, 0},
		{`{"quality_score": 67.6, "overall_assessment": "x"}`, 68},
		{`{"quality_score": "90", "overall_assessment": "x"}`, 90},
	}
	for _, tt := range tests {
		p := Extract(tt.raw, KindValidation)
		require.False(t, p.Fallback, tt.raw)
		assert.Equal(t, tt.want, p.Validation.QualityScore, tt.raw)
	}
}

func TestExtract_ValidationMissingRequiredKey(t *testing.T) {
	raw := `{"overall_assessment": "no score here"}`
	p := Extract(raw, KindValidation)

	assert.True(t, p.Fallback)
	assert.Contains(t, p.Reason, "quality_score")
	assert.Equal(t, 75, p.Validation.QualityScore)
	assert.Equal(t, raw, p.Validation.OverallAssessment)
}

func TestExtract_ValidationWrongTypes(t *testing.T) {
	for _, raw := range []string{
		`{"quality_score": "great", "overall_assessment": "x"}`,
		`{"quality_score": 80, "overall_assessment": 12}`,
		`{"quality_score": null, "overall_assessment": "x"}`,
	} {
		p := Extract(raw, KindValidation)
		assert.True(t, p.Fallback, raw)
		assert.Equal(t, FallbackQualityScore, p.Validation.QualityScore, raw)
	}
}

func TestExtract_ValidationMissingCompliance(t *testing.T) {
	p := Extract(`{"quality_score": 90, "overall_assessment": "ok"}`, KindValidation)
	require.False(t, p.Fallback)
	assert.Equal(t, model.Partial, p.Validation.ComplianceStatus.WHO)
	assert.Equal(t, model.Partial, p.Validation.ComplianceStatus.Indian)
	assert.NotNil(t, p.Validation.DataCorrections)
}

func TestExtract_Insights(t *testing.T) {
	raw := `Analysis follows. {
  "key_findings": ["Lead dominates risk"],
  "risk_assessment": "High in the north",
  "priority_metals": ["Pb", "As"],
  "geographic_patterns": "Clustered near Delhi",
  "policy_recommendations": ["Treat wells"],
  "health_implications": "Neurotoxicity"
}`
	p := Extract(raw, KindInsights)
	require.False(t, p.Fallback, p.Reason)
	require.NotNil(t, p.Insights)
	assert.Nil(t, p.Validation)

	assert.Equal(t, &model.Insights{
		KeyFindings:           []string{"Lead dominates risk"},
		RiskAssessment:        "High in the north",
		PriorityMetals:        []string{"Pb", "As"},
		GeographicPatterns:    "Clustered near Delhi",
		PolicyRecommendations: []string{"Treat wells"},
		HealthImplications:    "Neurotoxicity",
	}, p.Insights)
}

func TestExtract_InsightsUnavailable(t *testing.T) {
	for _, raw := range []string{
		"No structured answer today.",
		`{"key_findings": ["x"]}`,
		`{"key_findings": "x", "risk_assessment": "y"}`,
		`{"key_findings": ["x"], "risk_assessment": `,
	} {
		p := Extract(raw, KindInsights)
		assert.True(t, p.Fallback, raw)
		assert.Nil(t, p.Insights, raw)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	raw := `{"quality_score": 55, "overall_assessment": "meh", "issues_found": ["a", "b"]}`
	assert.Equal(t, Extract(raw, KindValidation), Extract(raw, KindValidation))
}
