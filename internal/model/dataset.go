package model

import "time"

// Dataset is a named collection of samples, typically one upload.
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SampleCount int       `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditAction labels an audit entry.
type AuditAction string

// Audit actions.
const (
	AuditApplied   AuditAction = "applied"
	AuditSkipped   AuditAction = "skipped"
	AuditDiscarded AuditAction = "discarded"
)

// AuditEntry records the outcome of one correction decision.
type AuditEntry struct {
	ID           string      `json:"id"`
	DatasetID    string      `json:"dataset_id"`
	AssessmentID string      `json:"assessment_id"`
	Action       AuditAction `json:"action"`
	Correction   Correction  `json:"correction"`
	SampleID     string      `json:"sample_id,omitempty"`
	Field        string      `json:"field,omitempty"`
	OldValue     string      `json:"old_value,omitempty"`
	NewValue     string      `json:"new_value,omitempty"`
	OldHMPI      float64     `json:"old_hmpi,omitempty"`
	NewHMPI      float64     `json:"new_hmpi,omitempty"`
	OldRisk      RiskTier    `json:"old_risk,omitempty"`
	NewRisk      RiskTier    `json:"new_risk,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
