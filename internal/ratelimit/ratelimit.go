// Package ratelimit caps the number of model calls a single run may make.
package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrBudgetExhausted = errors.New("model call budget exhausted")

// Budget counts model calls per provider against a fixed maximum.
// A zero or negative maximum means unlimited.
type Budget struct {
	mu       sync.Mutex
	max      int
	used     int
	provider string
	log      *slog.Logger
}

func NewBudget(provider string, max int, log *slog.Logger) *Budget {
	if log == nil {
		log = slog.Default()
	}
	return &Budget{provider: provider, max: max, log: log}
}

// Use reserves one call. It fails once the budget is spent.
func (b *Budget) Use() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.used >= b.max {
		b.log.Warn("model call budget reached", "provider", b.provider, "used", b.used, "limit", b.max)
		return fmt.Errorf("%s: %w (%d/%d)", b.provider, ErrBudgetExhausted, b.used, b.max)
	}

	b.used++
	b.log.Debug("model call reserved", "provider", b.provider, "used", b.used, "limit", b.max)
	return nil
}

// Stats returns the current usage for the health endpoint.
func (b *Budget) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"provider": b.provider,
		"used":     b.used,
		"limit":    b.max,
	}
}
