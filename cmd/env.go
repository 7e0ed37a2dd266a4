package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/groundwater-cli/internal/config"
	"github.com/sells-group/groundwater-cli/internal/metrics"
	"github.com/sells-group/groundwater-cli/internal/reasoning"
	"github.com/sells-group/groundwater-cli/internal/resilience"
	"github.com/sells-group/groundwater-cli/internal/review"
	"github.com/sells-group/groundwater-cli/internal/risk"
	"github.com/sells-group/groundwater-cli/internal/store"
	"github.com/sells-group/groundwater-cli/internal/workspace"
	"github.com/sells-group/groundwater-cli/pkg/anthropic"
)

// appEnv holds the initialized dependencies shared by commands.
type appEnv struct {
	Store     store.Store
	Risk      *risk.Model
	Metrics   *metrics.Registry
	Workspace *workspace.Service
}

// Close releases the environment's resources.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv opens the store and builds the workspace. withReasoning wires the
// Anthropic-backed reasoning client; without it every reasoning call fails
// as unavailable.
func initEnv(ctx context.Context, withReasoning bool) (*appEnv, error) {
	modes := []config.Mode{config.ModeStore}
	if withReasoning {
		modes = append(modes, config.ModeReasoning)
	}
	if err := cfg.Validate(modes...); err != nil {
		return nil, err
	}

	rm, err := initRisk()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st, Risk: rm, Metrics: metrics.New()}

	var client reasoning.Client = reasoning.NewFailing(eris.New("reasoning is not configured for this command"))
	if withReasoning {
		client = initReasoning()
	}
	env.Workspace = workspace.New(st, rm, client, env.Metrics)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRisk() (*risk.Model, error) {
	if cfg.Risk.StandardsFile == "" {
		return risk.DefaultModel(), nil
	}
	stds, err := risk.LoadStandards(cfg.Risk.StandardsFile)
	if err != nil {
		return nil, err
	}
	return risk.NewModel(stds)
}

func initReasoning() reasoning.Client {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Reasoning.FailureThreshold,
		ResetTimeout:     cfg.Reasoning.ResetTimeout(),
		OnStateChange: func(from, to resilience.State) {
			zap.L().Warn("reasoning: circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	temp := cfg.Anthropic.Temperature
	return reasoning.NewAnthropic(
		anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL),
		reasoning.Config{
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: &temp,
			System:      review.SystemPrompt,
			Timeout:     cfg.Reasoning.Timeout(),
		},
		reasoning.WithBreaker(breaker),
		reasoning.WithRateLimit(cfg.Reasoning.RequestsPerMinute),
	)
}
