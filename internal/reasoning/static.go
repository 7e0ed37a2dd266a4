package reasoning

import (
	"context"
	"sync"
)

// StaticClient is an in-memory Client that returns canned text. It records
// every prompt it receives.
type StaticClient struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string

	// Gate, when set, blocks each call until it receives a value or the
	// context ends.
	Gate chan struct{}
}

// NewStatic returns a client that always replies with text.
func NewStatic(text string) *StaticClient {
	return &StaticClient{reply: text}
}

// NewFailing returns a client that always fails with err.
func NewFailing(err error) *StaticClient {
	return &StaticClient{err: err}
}

// Complete records prompt and returns the canned reply.
func (c *StaticClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	gate := c.Gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", unavailable(ctx.Err())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", unavailable(c.err)
	}
	return c.reply, nil
}

// SetReply swaps the canned reply and clears any error.
func (c *StaticClient) SetReply(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply, c.err = text, nil
}

// Prompts returns the prompts received so far.
func (c *StaticClient) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}
