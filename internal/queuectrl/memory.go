package queuectrl

import (
	"context"
	"sync"
)

// MemoryControl is an in-memory Control useful for tests.
type MemoryControl struct {
	mu     sync.Mutex
	paused bool

	// Err, when set, is returned by IsPaused to simulate flag-store outages.
	Err error
}

func NewMemoryControl() *MemoryControl { return &MemoryControl{} }

func (c *MemoryControl) IsPaused(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return false, c.Err
	}
	return c.paused, nil
}

func (c *MemoryControl) SetPaused(ctx context.Context, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
	return nil
}
