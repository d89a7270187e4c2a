// Package quota bounds calls to the external OCR and model collaborators.
// The pipeline only sees the Checker interface; how usage is counted or
// persisted is the implementation's business.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Resource names one metered external collaborator.
type Resource string

const (
	ResourceOCR   Resource = "ocr"
	ResourceModel Resource = "model"
)

// ErrExhausted is returned when a resource's quota is used up.
var ErrExhausted = fmt.Errorf("quota exhausted")

// Checker is consulted before every call to a metered collaborator.
type Checker interface {
	// Allow consumes one unit of the resource's quota, or returns
	// ErrExhausted (possibly wrapped) when none remains.
	Allow(ctx context.Context, r Resource) error
}

// Unlimited is a Checker that never refuses. Used when no quota is
// configured and in tests.
type Unlimited struct{}

// Allow implements Checker.
func (Unlimited) Allow(ctx context.Context, r Resource) error { return nil }

// DailyCounter is an in-memory Checker enforcing per-resource daily call
// limits. Counters reset when the UTC day rolls over. A limit of zero or
// below means the resource is unmetered.
type DailyCounter struct {
	mu     sync.Mutex
	limits map[Resource]int
	used   map[Resource]int
	day    time.Time
	now    func() time.Time
}

// NewDailyCounter creates a counter with the given per-resource limits.
func NewDailyCounter(limits map[Resource]int) *DailyCounter {
	return &DailyCounter{
		limits: limits,
		used:   make(map[Resource]int),
		now:    time.Now,
	}
}

// Allow implements Checker.
func (c *DailyCounter) Allow(ctx context.Context, r Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.now().UTC().Truncate(24 * time.Hour)
	if !today.Equal(c.day) {
		c.day = today
		c.used = make(map[Resource]int)
	}

	limit := c.limits[r]
	if limit <= 0 {
		return nil
	}
	if c.used[r] >= limit {
		return fmt.Errorf("%s daily limit %d reached: %w", r, limit, ErrExhausted)
	}
	c.used[r]++
	return nil
}
