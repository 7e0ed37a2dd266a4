package workspace

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/review"
	"github.com/sells-group/groundwater-cli/internal/store"
)

// reviewSamples loads a dataset's samples for a review pass. The caller
// must hold the guard's review side.
func (s *Service) reviewSamples(ctx context.Context, datasetID string) ([]model.Sample, error) {
	samples, err := s.Samples(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyDataset
	}
	return samples, nil
}

// Validate runs a validation pass and stores the resulting assessment,
// replacing the dataset's previous one. Service failures are returned
// whole. A result superseded by a newer Validate call is dropped and
// ErrStaleResult returned.
func (s *Service) Validate(ctx context.Context, datasetID string) (*model.StoredAssessment, error) {
	release := s.guard.Review(datasetID)
	defer release()

	samples, err := s.reviewSamples(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	out, err := s.validation.Validate(ctx, datasetID, samples)
	if err != nil {
		return nil, err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if !s.validation.IsLatest(datasetID, out.Token) {
		return nil, s.dropStale(datasetID, out.Token)
	}

	stored := &model.StoredAssessment{
		DatasetID:  datasetID,
		Token:      out.Token,
		Assessment: out.Assessment,
		CreatedAt:  s.now().UTC(),
	}
	// Another process may have issued a newer token since the in-memory check.
	if err := s.store.SaveAssessment(ctx, stored); errors.Is(err, store.ErrStaleToken) {
		return nil, s.dropStale(datasetID, out.Token)
	} else if err != nil {
		return nil, eris.Wrap(err, "workspace: save assessment")
	}
	return stored, nil
}

func (s *Service) dropStale(datasetID string, token uint64) error {
	s.metrics.Stale(review.TaskValidation)
	zap.L().Info("workspace: dropping stale validation",
		zap.String("dataset_id", datasetID),
		zap.Uint64("token", token),
	)
	return ErrStaleResult
}

// Insights runs an insights pass. Service failures and unusable replies
// yield an outcome with no insights rather than an error.
func (s *Service) Insights(ctx context.Context, datasetID string) (*review.InsightsOutcome, error) {
	release := s.guard.Review(datasetID)
	defer release()

	samples, err := s.reviewSamples(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	out := s.insights.Summarize(ctx, datasetID, samples)
	if !s.insights.IsLatest(datasetID, out.Token) {
		s.metrics.Stale(review.TaskInsights)
		return nil, ErrStaleResult
	}
	return out, nil
}

// ReviewResult carries both review passes. ValidationErr holds the
// validation failure, which does not affect insights.
type ReviewResult struct {
	Assessment    *model.StoredAssessment
	ValidationErr error
	Insights      *review.InsightsOutcome
}

// Review runs validation and insights concurrently. It fails only when the
// dataset cannot be reviewed at all; per-pass failures are carried in the
// result.
func (s *Service) Review(ctx context.Context, datasetID string) (*ReviewResult, error) {
	if _, err := s.reviewSamples(ctx, datasetID); err != nil {
		return nil, err
	}

	res := &ReviewResult{}
	var g errgroup.Group
	g.Go(func() error {
		res.Assessment, res.ValidationErr = s.Validate(ctx, datasetID)
		return nil
	})
	g.Go(func() error {
		out, err := s.Insights(ctx, datasetID)
		if err != nil {
			out = &review.InsightsOutcome{DatasetID: datasetID, Reason: err.Error()}
		}
		res.Insights = out
		return nil
	})
	_ = g.Wait()

	zap.L().Info("workspace: review complete",
		zap.String("dataset_id", datasetID),
		zap.Bool("validated", res.Assessment != nil),
		zap.Bool("insights", res.Insights.Available()),
	)
	return res, nil
}
