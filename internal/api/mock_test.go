package api

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/groundwater-cli/internal/correction"
	"github.com/sells-group/groundwater-cli/internal/ingest"
	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/review"
	"github.com/sells-group/groundwater-cli/internal/risk"
	"github.com/sells-group/groundwater-cli/internal/workspace"
)

type mockWorkspace struct {
	mock.Mock
}

func (m *mockWorkspace) Import(ctx context.Context, name string, r io.Reader, format ingest.Format) (*workspace.ImportResult, error) {
	args := m.Called(ctx, name, r, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workspace.ImportResult), args.Error(1)
}

func (m *mockWorkspace) Datasets(ctx context.Context) ([]model.Dataset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Dataset), args.Error(1)
}

func (m *mockWorkspace) Samples(ctx context.Context, datasetID string) ([]model.Sample, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Sample), args.Error(1)
}

func (m *mockWorkspace) Summary(ctx context.Context, datasetID string) (*risk.Summary, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.Summary), args.Error(1)
}

func (m *mockWorkspace) Rescore(ctx context.Context, datasetID string) (*risk.BatchResult, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.BatchResult), args.Error(1)
}

func (m *mockWorkspace) Validate(ctx context.Context, datasetID string) (*model.StoredAssessment, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredAssessment), args.Error(1)
}

func (m *mockWorkspace) Assessment(ctx context.Context, datasetID string) (*model.StoredAssessment, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredAssessment), args.Error(1)
}

func (m *mockWorkspace) Insights(ctx context.Context, datasetID string) (*review.InsightsOutcome, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*review.InsightsOutcome), args.Error(1)
}

func (m *mockWorkspace) AcceptCorrections(ctx context.Context, datasetID string) (*correction.Result, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*correction.Result), args.Error(1)
}

func (m *mockWorkspace) RejectCorrections(ctx context.Context, datasetID string) (int, error) {
	args := m.Called(ctx, datasetID)
	return args.Int(0), args.Error(1)
}

func (m *mockWorkspace) Audit(ctx context.Context, datasetID string) ([]model.AuditEntry, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEntry), args.Error(1)
}
