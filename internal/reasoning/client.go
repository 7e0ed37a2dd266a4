// Package reasoning sends prompts to the external text-completion service.
// It owns the single round trip and error wrapping; it knows nothing about
// what the reply means.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/groundwater-cli/internal/resilience"
	"github.com/sells-group/groundwater-cli/pkg/anthropic"
)

// Client completes a prompt with raw text. One call is one outbound request.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrServiceUnavailable matches every ServiceUnavailableError via errors.Is.
var ErrServiceUnavailable = errors.New("reasoning service unavailable")

// ServiceUnavailableError wraps any transport or service-side failure.
type ServiceUnavailableError struct {
	Reason     string
	StatusCode int  // 0 when no HTTP response was received
	Transient  bool // a manual retry is likely to succeed
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrServiceUnavailable.Error(), e.Reason)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrServiceUnavailable) match.
func (e *ServiceUnavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// Config holds per-client settings passed at construction time.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	System      string
	Timeout     time.Duration // per call; 0 means the caller's context only
}

// AnthropicClient implements Client on top of the Anthropic messages API.
type AnthropicClient struct {
	api     anthropic.Client
	cfg     Config
	breaker *resilience.Breaker
	limiter *rate.Limiter
}

// Option customizes an AnthropicClient.
type Option func(*AnthropicClient)

// WithBreaker fails calls fast while the service is known to be down.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *AnthropicClient) { c.breaker = b }
}

// WithRateLimit caps outbound calls per minute. Zero disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(c *AnthropicClient) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// NewAnthropic builds a client around an already-constructed API client.
func NewAnthropic(api anthropic.Client, cfg Config, opts ...Option) *AnthropicClient {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	c := &AnthropicClient{api: api, cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", unavailable(err)
		}
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.System != "" {
		req.System = []anthropic.SystemBlock{{Text: c.cfg.System}}
	}

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := c.api.CreateMessage(ctx, req)
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	}

	var (
		resp *anthropic.MessageResponse
		err  error
	)
	if c.breaker != nil {
		resp, err = resilience.Call(ctx, c.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		uerr := unavailable(err)
		zap.L().Warn("reasoning: call failed",
			zap.String("model", c.cfg.Model),
			zap.String("reason", uerr.Reason),
			zap.Bool("transient", uerr.Transient),
		)
		return "", uerr
	}

	resp.Usage.LogCost(c.cfg.Model, "reasoning")
	if resp.StopReason == "max_tokens" {
		zap.L().Warn("reasoning: reply truncated at max tokens",
			zap.String("model", c.cfg.Model),
			zap.Int64("max_tokens", c.cfg.MaxTokens),
		)
	}
	return resp.Text(), nil
}

// classify marks SDK status errors that may clear on their own as transient.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

func unavailable(err error) *ServiceUnavailableError {
	var already *ServiceUnavailableError
	if errors.As(err, &already) {
		return already
	}

	out := &ServiceUnavailableError{Err: err, Transient: resilience.IsTransient(err)}

	var apiErr *sdk.Error
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		out.Reason = "too many recent failures, try again shortly"
		out.Transient = true
	case errors.Is(err, context.Canceled):
		out.Reason = "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		out.Reason = "request timed out"
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.StatusCode
		out.Reason = fmt.Sprintf("service returned status %d", apiErr.StatusCode)
	default:
		out.Reason = err.Error()
	}
	return out
}
