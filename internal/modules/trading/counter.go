// Package trading submits reconciliation orders and tracks them to completion.
package trading

import (
	"context"
	"sync"
)

// CompletionCounter counts order batches down to completion.
// Done closes exactly once per batch, when completed reaches expected.
type CompletionCounter struct {
	mu        sync.Mutex
	expected  int
	completed int
	fired     bool
	seen      map[int64]struct{}
	done      chan struct{}
}

// NewCompletionCounter creates a counter armed for an empty batch
func NewCompletionCounter() *CompletionCounter {
	c := &CompletionCounter{}
	c.SetOrderCount(0)
	return c
}

// SetOrderCount re-arms the counter for a batch of n orders.
// Counts from any previous batch are discarded.
func (c *CompletionCounter) SetOrderCount(n int) {
	if n < 0 {
		n = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expected = n
	c.completed = 0
	c.fired = false
	c.seen = make(map[int64]struct{}, n)
	c.done = make(chan struct{})
	c.checkLocked()
}

// MarkTerminal records that orderID reached a terminal status.
// Repeated notifications for the same order count once.
func (c *CompletionCounter) MarkTerminal(orderID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seen[orderID]; dup {
		return
	}
	c.seen[orderID] = struct{}{}
	c.completed++
	c.checkLocked()
}

// Resize lowers the expectation when fewer orders than planned were submitted
func (c *CompletionCounter) Resize(n int) {
	if n < 0 {
		n = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expected = n
	c.checkLocked()
}

// Done returns a channel closed when the current batch completes
func (c *CompletionCounter) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the current batch completes or ctx ends
func (c *CompletionCounter) Wait(ctx context.Context) error {
	select {
	case <-c.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current counts
func (c *CompletionCounter) Snapshot() (expected, completed int, fired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expected, c.completed, c.fired
}

func (c *CompletionCounter) checkLocked() {
	if !c.fired && c.completed >= c.expected {
		c.fired = true
		close(c.done)
	}
}
