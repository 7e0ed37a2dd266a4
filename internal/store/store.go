// Package store persists datasets, samples, assessments and the correction
// audit trail.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/groundwater-cli/internal/model"
)

// ErrNotFound is wrapped by every lookup that finds no row.
var ErrNotFound = eris.New("store: not found")

// ErrStaleToken is returned by SaveAssessment when a newer review token has
// been issued for the dataset.
var ErrStaleToken = eris.New("store: stale review token")

// Decision is an operator's accept or reject of a pending correction batch.
// It is committed as one unit: the batch is claimed, corrected samples are
// upserted and the audit entries appended, or nothing is written.
type Decision struct {
	AssessmentID string
	DatasetID    string
	Status       model.BatchStatus
	DecidedAt    time.Time
	Samples      []model.Sample
	Audit        []model.AuditEntry
}

// Store defines the persistence interface for groundwater datasets.
type Store interface {
	// Datasets
	CreateDataset(ctx context.Context, name string) (*model.Dataset, error)
	GetDataset(ctx context.Context, id string) (*model.Dataset, error)
	ListDatasets(ctx context.Context) ([]model.Dataset, error)

	// Samples are upserted by ID and listed in first-insert order.
	SaveSamples(ctx context.Context, datasetID string, samples []model.Sample) error
	ListSamples(ctx context.Context, datasetID string) ([]model.Sample, error)

	// Assessments: one current assessment per dataset; saving replaces it.
	// NextToken issues the dataset's next review token. SaveAssessment
	// returns ErrStaleToken when a.Token is older than the latest issued.
	NextToken(ctx context.Context, datasetID string) (uint64, error)
	SaveAssessment(ctx context.Context, a *model.StoredAssessment) error
	GetAssessment(ctx context.Context, datasetID string) (*model.StoredAssessment, error)
	// CommitDecision claims a pending assessment and writes its outcome.
	// A batch that is no longer pending wraps ErrNotFound.
	CommitDecision(ctx context.Context, d Decision) error

	// Audit
	AppendAudit(ctx context.Context, entries []model.AuditEntry) error
	ListAudit(ctx context.Context, datasetID string) ([]model.AuditEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// prepareAssessment fills defaults before a save.
func prepareAssessment(a *model.StoredAssessment, newID func() string) {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = model.BatchNone
		if len(a.Assessment.DataCorrections) > 0 {
			a.Status = model.BatchPending
		}
	}
}

func checkDecision(status model.BatchStatus) error {
	if !status.Decided() {
		return eris.Errorf("store: invalid decision status %q", status)
	}
	return nil
}
