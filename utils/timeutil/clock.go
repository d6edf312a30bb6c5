// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package timeutil provides a fakeable clock so timestamp-skew and
// redemption lock-period logic can be tested without sleeping.
package timeutil

import (
	"sync"
	"time"
)

// Clock reads global time unless a fixed time has been set. The zero
// value is ready to use and safe for concurrent use.
type Clock struct {
	mu    sync.RWMutex
	fixed time.Time
}

// Set pins the clock to t until Sync is called.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixed = t
}

// Sync returns the clock to global time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixed = time.Time{}
}

// Time returns the current time on this clock.
func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.fixed.IsZero() {
		return c.fixed
	}
	return time.Now()
}

// Unix returns the current clock time as seconds since the epoch,
// clamped at zero.
func (c *Clock) Unix() uint64 {
	unix := c.Time().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

// Advance moves a pinned clock forward by d. It has no effect on a
// clock following global time.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fixed.IsZero() {
		c.fixed = c.fixed.Add(d)
	}
}
