// Package review runs the AI-assisted validation and insights passes over a
// dataset. Pipelines only read samples; applying suggested corrections is
// the correction package's job.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/metrics"
	"github.com/sells-group/groundwater-cli/internal/model"
	"github.com/sells-group/groundwater-cli/internal/normalize"
	"github.com/sells-group/groundwater-cli/internal/reasoning"
)

// Task names used in logs and metrics.
const (
	TaskValidation = "validation"
	TaskInsights   = "insights"
)

// ValidationOutcome is the result of one validation call.
type ValidationOutcome struct {
	DatasetID  string
	Token      uint64
	Assessment model.QualityAssessment

	// FallbackReason is set when the reply had no usable payload.
	FallbackReason string
}

// InsightsOutcome is the result of one insights call. Insights is nil when
// no insight is available.
type InsightsOutcome struct {
	DatasetID string
	Token     uint64
	Insights  *model.Insights
	Reason    string
}

// Available reports whether the call produced insights.
func (o *InsightsOutcome) Available() bool {
	return o != nil && o.Insights != nil
}

// TokenSource issues request tokens that are shared beyond this process,
// so separate CLI runs against one store order their results.
type TokenSource interface {
	NextToken(ctx context.Context, datasetID string) (uint64, error)
}

// ValidationPipeline scores data quality and proposes corrections.
type ValidationPipeline struct {
	client  reasoning.Client
	seq     *Sequencer
	tokens  TokenSource
	metrics *metrics.Registry
}

// ValidationOption configures a ValidationPipeline.
type ValidationOption func(*ValidationPipeline)

// WithTokenSource draws validation tokens from src instead of the
// in-process sequencer alone.
func WithTokenSource(src TokenSource) ValidationOption {
	return func(p *ValidationPipeline) { p.tokens = src }
}

// NewValidation creates a ValidationPipeline. m may be nil.
func NewValidation(client reasoning.Client, m *metrics.Registry, opts ...ValidationOption) *ValidationPipeline {
	p := &ValidationPipeline{client: client, seq: NewSequencer(), metrics: m}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ValidationPipeline) nextToken(ctx context.Context, datasetID string) (uint64, error) {
	if p.tokens == nil {
		return p.seq.Next(datasetID), nil
	}
	token, err := p.tokens.NextToken(ctx, datasetID)
	if err != nil {
		return 0, eris.Wrap(err, "review: issue validation token")
	}
	p.seq.Observe(datasetID, token)
	return token, nil
}

// IsLatest reports whether token belongs to the most recently started
// validation of datasetID.
func (p *ValidationPipeline) IsLatest(datasetID string, token uint64) bool {
	return p.seq.IsLatest(datasetID, token)
}

// Validate reviews the full dataset. A ServiceUnavailableError from the
// reasoning service is returned unchanged; malformed replies never error.
func (p *ValidationPipeline) Validate(ctx context.Context, datasetID string, samples []model.Sample) (*ValidationOutcome, error) {
	token, err := p.nextToken(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(
		zap.String("task", TaskValidation),
		zap.String("dataset_id", datasetID),
		zap.Uint64("token", token),
	)

	prompt, err := ValidationPrompt(samples)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := p.client.Complete(ctx, prompt)
	if err != nil {
		p.metrics.ObserveReasoning(TaskValidation, outcomeOf(err), time.Since(start))
		log.Warn("review: validation failed", zap.Error(err))
		return nil, err
	}
	p.metrics.ObserveReasoning(TaskValidation, "ok", time.Since(start))

	payload := normalize.Extract(raw, normalize.KindValidation)
	out := &ValidationOutcome{
		DatasetID:  datasetID,
		Token:      token,
		Assessment: *payload.Validation,
	}
	if payload.Fallback {
		out.FallbackReason = payload.Reason
		p.metrics.Fallback(string(normalize.KindValidation))
		log.Info("review: validation reply had no usable payload", zap.String("reason", payload.Reason))
	}

	log.Debug("review: validation complete",
		zap.Int("samples", len(samples)),
		zap.Int("quality_score", out.Assessment.QualityScore),
		zap.Int("corrections", len(out.Assessment.DataCorrections)),
	)
	return out, nil
}

// InsightsPipeline produces a narrative summary of a dataset.
type InsightsPipeline struct {
	client  reasoning.Client
	seq     *Sequencer
	metrics *metrics.Registry
}

// NewInsights creates an InsightsPipeline. m may be nil.
func NewInsights(client reasoning.Client, m *metrics.Registry) *InsightsPipeline {
	return &InsightsPipeline{client: client, seq: NewSequencer(), metrics: m}
}

// IsLatest reports whether token belongs to the most recently started
// insights call for datasetID.
func (p *InsightsPipeline) IsLatest(datasetID string, token uint64) bool {
	return p.seq.IsLatest(datasetID, token)
}

// Summarize never fails: any error yields an outcome with nil Insights and
// the reason logged.
func (p *InsightsPipeline) Summarize(ctx context.Context, datasetID string, samples []model.Sample) *InsightsOutcome {
	out := &InsightsOutcome{DatasetID: datasetID, Token: p.seq.Next(datasetID)}
	log := zap.L().With(
		zap.String("task", TaskInsights),
		zap.String("dataset_id", datasetID),
		zap.Uint64("token", out.Token),
	)

	prompt, err := InsightsPrompt(samples)
	if err != nil {
		out.Reason = err.Error()
		log.Warn("review: insights unavailable", zap.Error(err))
		return out
	}

	start := time.Now()
	raw, err := p.client.Complete(ctx, prompt)
	if err != nil {
		p.metrics.ObserveReasoning(TaskInsights, outcomeOf(err), time.Since(start))
		out.Reason = err.Error()
		log.Warn("review: insights unavailable", zap.Error(err))
		return out
	}
	p.metrics.ObserveReasoning(TaskInsights, "ok", time.Since(start))

	payload := normalize.Extract(raw, normalize.KindInsights)
	if payload.Fallback {
		out.Reason = payload.Reason
		p.metrics.Fallback(string(normalize.KindInsights))
		log.Info("review: insights reply had no usable payload", zap.String("reason", payload.Reason))
		return out
	}
	out.Insights = payload.Insights
	return out
}

func outcomeOf(err error) string {
	var sue *reasoning.ServiceUnavailableError
	if errors.As(err, &sue) && sue.Transient {
		return "transient"
	}
	return "error"
}
