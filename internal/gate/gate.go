// Package gate enforces the engagement rate limits: a rolling daily reply
// quota and a per-author cooldown. It is the sole owner of that state; all
// mutation goes through Record and ResetIfNewDay.
package gate

import (
	"sync"
	"time"
)

// Policy holds the limits the controller enforces
type Policy struct {
	MaxDailyReplies int
	Cooldown        time.Duration
}

// Controller tracks per-author cooldowns and the daily reply counter.
// All methods are safe for concurrent use; operations are serialized by an
// internal mutex so quota checks and updates observe program order.
type Controller struct {
	mu         sync.Mutex
	policy     Policy
	lastReply  map[string]time.Time
	dailyCount int
	resetYear  int
	resetDay   int // day of year

	now func() time.Time // injectable clock for tests
}

// NewController creates a Controller with the given policy
func NewController(policy Policy) *Controller {
	c := &Controller{
		policy:    policy,
		lastReply: make(map[string]time.Time),
		now:       time.Now,
	}
	c.resetYear, c.resetDay = dayOf(c.now())
	return c
}

// WithClock overrides the controller's clock. For tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	c.resetYear, c.resetDay = dayOf(now())
	return c
}

func dayOf(t time.Time) (int, int) {
	return t.Year(), t.YearDay()
}

// ResetIfNewDay zeroes the daily counter when the calendar date has changed
// since the last reset. Idempotent and cheap; must run before quota checks.
func (c *Controller) ResetIfNewDay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfNewDayLocked()
}

func (c *Controller) resetIfNewDayLocked() {
	year, day := dayOf(c.now())
	if year != c.resetYear || day != c.resetDay {
		c.dailyCount = 0
		c.resetYear, c.resetDay = year, day
	}
}

// MayEngage reports whether the agent may reply to the given author now:
// the daily quota must not be exhausted and the author must be outside the
// cooldown window. Read-only.
func (c *Controller) MayEngage(authorID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dailyCount >= c.policy.MaxDailyReplies {
		return false
	}
	if last, ok := c.lastReply[authorID]; ok {
		if c.now().Sub(last) < c.policy.Cooldown {
			return false
		}
	}
	return true
}

// Record marks a successful dispatch to the author: stamps the cooldown and
// increments the daily counter. Call only after a successful post, never
// speculatively.
func (c *Controller) Record(authorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastReply[authorID] = c.now()
	c.dailyCount++
}

// QuotaExhausted reports whether the daily reply quota has been reached
func (c *Controller) QuotaExhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dailyCount >= c.policy.MaxDailyReplies
}

// DailyCount returns today's reply count
func (c *Controller) DailyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dailyCount
}

// Restore rehydrates state from persisted engagement history, typically at
// process start: todayCount replies already sent today and the most recent
// reply time per author. Restored cooldown stamps older than the cooldown
// window are kept; they simply no longer block.
func (c *Controller) Restore(todayCount int, lastReplies map[string]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetIfNewDayLocked()
	c.dailyCount = todayCount
	for author, t := range lastReplies {
		if existing, ok := c.lastReply[author]; !ok || t.After(existing) {
			c.lastReply[author] = t
		}
	}
}
