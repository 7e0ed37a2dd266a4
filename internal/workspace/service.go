// Package workspace is the operator surface over a groundwater dataset. It
// ties the store, the risk model, the review pipelines and the correction
// merger together and enforces per-dataset ordering between them.
package workspace

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/correction"
	"github.com/sells-group/groundwater-cli/internal/ingest"
	"github.com/sells-group/groundwater-cli/internal/metrics"
	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/reasoning"
	"github.com/sells-group/groundwater-cli/internal/review"
	"github.com/sells-group/groundwater-cli/internal/risk"
	"github.com/sells-group/groundwater-cli/internal/store"
)

var (
	// ErrStaleResult is returned when a newer call for the same dataset was
	// started while this one was in flight. The result was dropped.
	ErrStaleResult = eris.New("workspace: superseded by a newer request")

	// ErrEmptyDataset is returned when reviewing a dataset with no samples.
	ErrEmptyDataset = eris.New("workspace: dataset has no samples")

	// ErrNoCorrections is returned when deciding on an assessment that
	// proposed no corrections.
	ErrNoCorrections = eris.New("workspace: assessment has no pending corrections")
)

// Service runs dataset operations.
type Service struct {
	store      store.Store
	risk       *risk.Model
	reader     *ingest.Reader
	validation *review.ValidationPipeline
	insights   *review.InsightsPipeline
	merger     *correction.Merger
	guard      *review.Guard
	metrics    *metrics.Registry

	// saveMu orders the latest-token check with the assessment save.
	saveMu sync.Mutex
	now    func() time.Time
}

// New creates a Service. m may be nil.
func New(st store.Store, rm *risk.Model, client reasoning.Client, m *metrics.Registry) *Service {
	return &Service{
		store:      st,
		risk:       rm,
		reader:     ingest.NewReader(rm.Standards()),
		validation: review.NewValidation(client, m, review.WithTokenSource(st)),
		insights:   review.NewInsights(client, m),
		merger:     correction.NewMerger(rm),
		guard:      review.NewGuard(),
		metrics:    m,
		now:        time.Now,
	}
}

// ImportResult reports what an upload produced.
type ImportResult struct {
	Dataset     *model.Dataset     `json:"dataset"`
	RowErrors   []*ingest.RowError `json:"row_errors,omitempty"`
	ScoreErrors []*risk.DataError  `json:"-"`
	Ignored     []string           `json:"ignored_columns,omitempty"`
}

// Import parses an upload, scores every sample and stores it as a new
// dataset. Rows that fail to parse and samples that fail to score are
// reported; neither aborts the import.
func (s *Service) Import(ctx context.Context, name string, r io.Reader, format ingest.Format) (*ImportResult, error) {
	parsed, err := s.reader.Read(ctx, r, format)
	if err != nil {
		return nil, err
	}
	if len(parsed.Samples) == 0 {
		return nil, eris.Wrapf(ErrEmptyDataset, "workspace: import %q (%d row errors)", name, len(parsed.RowErrors))
	}

	ds, err := s.store.CreateDataset(ctx, name)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: create dataset")
	}

	scored := s.risk.ScoreAll(parsed.Samples)
	for i := range scored.Samples {
		scored.Samples[i].DatasetID = ds.ID
	}
	if err := s.store.SaveSamples(ctx, ds.ID, scored.Samples); err != nil {
		return nil, eris.Wrap(err, "workspace: save imported samples")
	}
	ds.SampleCount = len(scored.Samples)

	zap.L().Info("workspace: dataset imported",
		zap.String("dataset_id", ds.ID),
		zap.String("name", name),
		zap.Int("samples", ds.SampleCount),
		zap.Int("row_errors", len(parsed.RowErrors)),
		zap.Int("score_errors", len(scored.Errors)),
	)
	return &ImportResult{
		Dataset:     ds,
		RowErrors:   parsed.RowErrors,
		ScoreErrors: scored.Errors,
		Ignored:     parsed.Ignored,
	}, nil
}

// Datasets lists all datasets.
func (s *Service) Datasets(ctx context.Context) ([]model.Dataset, error) {
	return s.store.ListDatasets(ctx)
}

// Samples returns a dataset's samples in upload order.
func (s *Service) Samples(ctx context.Context, datasetID string) ([]model.Sample, error) {
	if _, err := s.store.GetDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.ListSamples(ctx, datasetID)
}

// Rescore recomputes every sample's HMPI against the current standards
// table and stores the result.
func (s *Service) Rescore(ctx context.Context, datasetID string) (*risk.BatchResult, error) {
	release := s.guard.Apply(datasetID)
	defer release()

	samples, err := s.Samples(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	res := s.risk.ScoreAll(samples)
	if err := s.store.SaveSamples(ctx, datasetID, res.Samples); err != nil {
		return nil, eris.Wrap(err, "workspace: save rescored samples")
	}
	zap.L().Info("workspace: dataset rescored",
		zap.String("dataset_id", datasetID),
		zap.Int("samples", len(res.Samples)),
		zap.Int("score_errors", len(res.Errors)),
	)
	return &res, nil
}

// Summary returns the dataset's risk distribution.
func (s *Service) Summary(ctx context.Context, datasetID string) (*risk.Summary, error) {
	samples, err := s.Samples(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	sum := s.risk.Summarize(samples)
	return &sum, nil
}

// Assessment returns the dataset's current assessment.
func (s *Service) Assessment(ctx context.Context, datasetID string) (*model.StoredAssessment, error) {
	return s.store.GetAssessment(ctx, datasetID)
}

// Audit returns the dataset's correction audit trail, oldest first.
func (s *Service) Audit(ctx context.Context, datasetID string) ([]model.AuditEntry, error) {
	if _, err := s.store.GetDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, datasetID)
}
