package workspace

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/correction"
	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/store"
)

// pendingBatch loads the assessment whose corrections are awaiting a
// decision.
func (s *Service) pendingBatch(ctx context.Context, datasetID string) (*model.StoredAssessment, error) {
	batch, err := s.store.GetAssessment(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	switch {
	case batch.Status.Decided():
		return nil, eris.Wrapf(correction.ErrBatchDecided, "workspace: assessment %s is %s", batch.ID, batch.Status)
	case batch.Status != model.BatchPending:
		return nil, ErrNoCorrections
	}
	return batch, nil
}

// commit claims the batch and writes its samples and audit entries as one
// unit. Only one caller can claim a batch; on any failure the batch stays
// pending and nothing is written.
func (s *Service) commit(ctx context.Context, batch *model.StoredAssessment, status model.BatchStatus, samples []model.Sample, audit []model.AuditEntry) error {
	err := s.store.CommitDecision(ctx, store.Decision{
		AssessmentID: batch.ID,
		DatasetID:    batch.DatasetID,
		Status:       status,
		DecidedAt:    s.now().UTC(),
		Samples:      samples,
		Audit:        audit,
	})
	if errors.Is(err, store.ErrNotFound) {
		return eris.Wrapf(correction.ErrBatchDecided, "workspace: assessment %s", batch.ID)
	}
	return eris.Wrapf(err, "workspace: commit %s corrections", status)
}

// AcceptCorrections applies the dataset's pending correction batch. Each
// correction is applied or skipped on its own; the batch is consumed either
// way and cannot be applied again.
func (s *Service) AcceptCorrections(ctx context.Context, datasetID string) (*correction.Result, error) {
	release := s.guard.Apply(datasetID)
	defer release()

	batch, err := s.pendingBatch(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	samples, err := s.store.ListSamples(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	res, err := s.merger.Apply(samples, *batch)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, batch, model.BatchApplied, res.Changed(), res.Audit); err != nil {
		return nil, err
	}

	s.metrics.Correction(string(model.AuditApplied), res.Applied)
	s.metrics.Correction(string(model.AuditSkipped), res.Skipped)
	zap.L().Info("workspace: corrections accepted",
		zap.String("dataset_id", datasetID),
		zap.String("assessment_id", batch.ID),
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// RejectCorrections discards the dataset's pending correction batch without
// touching any sample. It returns the number of corrections discarded.
func (s *Service) RejectCorrections(ctx context.Context, datasetID string) (int, error) {
	release := s.guard.Apply(datasetID)
	defer release()

	batch, err := s.pendingBatch(ctx, datasetID)
	if err != nil {
		return 0, err
	}
	entries := s.merger.Discard(*batch)

	if err := s.commit(ctx, batch, model.BatchDiscarded, nil, entries); err != nil {
		return 0, err
	}

	s.metrics.Correction(string(model.AuditDiscarded), len(entries))
	zap.L().Info("workspace: corrections rejected",
		zap.String("dataset_id", datasetID),
		zap.String("assessment_id", batch.ID),
		zap.Int("discarded", len(entries)),
	)
	return len(entries), nil
}
