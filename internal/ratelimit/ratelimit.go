// Package ratelimit implements fixed-window request counting behind a
// swappable Store.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store counts hits per key in fixed windows. MemoryStore only sees the
// requests of one process; RedisStore shares counters across replicas.
type Store interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Rule is a named limit applied per subject (an IP address or a user id).
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

func (r Rule) Key(subject string) string {
	return r.Name + ":" + subject
}

// Check applies r to subject.
func (r Rule) Check(ctx context.Context, store Store, subject string) (Result, error) {
	return store.Check(ctx, r.Key(subject), r.Limit, r.Window)
}

func windowBounds(now time.Time, window time.Duration) (time.Time, time.Time) {
	start := now.Truncate(window)
	return start, start.Add(window)
}

func result(count, limit int, resetAt time.Time) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: count <= limit, Remaining: remaining, ResetAt: resetAt}
}
