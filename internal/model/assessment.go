package model

import "time"

// ComplianceLevel is the reasoning service's verdict against a drinking
// water standard.
type ComplianceLevel string

// Compliance levels.
const (
	Compliant    ComplianceLevel = "compliant"
	Partial      ComplianceLevel = "partial"
	NonCompliant ComplianceLevel = "non-compliant"
)

// Confidence is the reasoning service's confidence in a proposed correction.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ComplianceStatus holds compliance verdicts per standard.
type ComplianceStatus struct {
	WHO    ComplianceLevel `json:"who_standards"`
	Indian ComplianceLevel `json:"indian_standards"`
}

// Correction is a proposed change to one sample, pending operator decision.
type Correction struct {
	Location       string     `json:"location"`
	Issue          string     `json:"issue"`
	SuggestedValue string     `json:"suggested_value"`
	Confidence     Confidence `json:"confidence"`
}

// QualityAssessment is the outcome of a validation run over a dataset.
type QualityAssessment struct {
	QualityScore      int              `json:"quality_score"`
	OverallAssessment string           `json:"overall_assessment"`
	IssuesFound       []string         `json:"issues_found"`
	Recommendations   []string         `json:"recommendations"`
	ComplianceStatus  ComplianceStatus `json:"compliance_status"`
	DataCorrections   []Correction     `json:"data_corrections"`

	// Fallback is set when the service reply had no usable structured
	// payload and the assessment was synthesized from the raw text.
	Fallback bool `json:"fallback,omitempty"`
}

// Band buckets the quality score the way operators read it.
func (q QualityAssessment) Band() string {
	switch {
	case q.QualityScore >= 80:
		return "good"
	case q.QualityScore >= 60:
		return "fair"
	default:
		return "poor"
	}
}

// Insights is the narrative risk summary for a dataset. Never merged back
// into samples.
type Insights struct {
	KeyFindings           []string `json:"key_findings"`
	RiskAssessment        string   `json:"risk_assessment"`
	PriorityMetals        []string `json:"priority_metals"`
	GeographicPatterns    string   `json:"geographic_patterns"`
	PolicyRecommendations []string `json:"policy_recommendations"`
	HealthImplications    string   `json:"health_implications"`
}

// BatchStatus tracks the operator decision on an assessment's corrections.
type BatchStatus string

// Batch statuses.
const (
	BatchNone      BatchStatus = "none" // assessment proposed no corrections
	BatchPending   BatchStatus = "pending"
	BatchApplied   BatchStatus = "applied"
	BatchDiscarded BatchStatus = "discarded"
)

// Decided reports whether the batch has already been consumed.
func (s BatchStatus) Decided() bool {
	return s == BatchApplied || s == BatchDiscarded
}

// StoredAssessment is a persisted assessment with its correction batch state.
type StoredAssessment struct {
	ID         string            `json:"id"`
	DatasetID  string            `json:"dataset_id"`
	Token      uint64            `json:"token"`
	Assessment QualityAssessment `json:"assessment"`
	Status     BatchStatus       `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	DecidedAt  *time.Time        `json:"decided_at,omitempty"`
}
