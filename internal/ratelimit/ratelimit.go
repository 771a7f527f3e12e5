// Package ratelimit implements a fixed-window per-identity request
// counter. Fixed windows are bursty at boundaries by design; callers
// needing smoother limiting must compose an additional layer.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/policy"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// record is one identity's counter for a single window.
type record struct {
	count     int
	windowEnd time.Time
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed           bool
	Reason            string
	RetryAfterSeconds int
	Remaining         int
	WindowEnd         time.Time
}

// Status reports an identity's current windows without consuming a request.
type Status struct {
	MinuteCount     int       `json:"minute_count"`
	MinuteRemaining int       `json:"minute_remaining"`
	MinuteResetAt   time.Time `json:"minute_reset_at"`
	HourCount       int       `json:"hour_count"`
	HourRemaining   int       `json:"hour_remaining"`
	HourResetAt     time.Time `json:"hour_reset_at"`
}

// Limiter tracks fixed-window counters per identity for both the minute
// and hour ceilings. All record access happens under the mutex, so
// concurrent checks for one identity cannot race on a record.
type Limiter struct {
	mu      sync.Mutex
	minutes map[string]*record
	hours   map[string]*record
	now     func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		minutes: make(map[string]*record),
		hours:   make(map[string]*record),
		now:     time.Now,
	}
}

// Check consumes one request for the identity if both window ceilings
// permit it. The ceilings come from cfg at call time, so a policy update
// takes effect for the very next check. A denied check never increments
// either counter.
func (l *Limiter) Check(identity string, cfg *policy.Configuration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minute := l.fresh(l.minutes, identity, now, minuteWindow)
	hour := l.fresh(l.hours, identity, now, hourWindow)

	if cfg.MaxRequestsPerMinute > 0 && minute.count >= cfg.MaxRequestsPerMinute {
		return denied(minute, now, fmt.Sprintf(
			"rate limit exceeded: %d requests per minute", cfg.MaxRequestsPerMinute))
	}
	if cfg.MaxRequestsPerHour > 0 && hour.count >= cfg.MaxRequestsPerHour {
		return denied(hour, now, fmt.Sprintf(
			"rate limit exceeded: %d requests per hour", cfg.MaxRequestsPerHour))
	}

	minute.count++
	hour.count++

	remaining := cfg.MaxRequestsPerMinute - minute.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, WindowEnd: minute.windowEnd}
}

// Status reports the identity's window counters without counting a request.
func (l *Limiter) Status(identity string, cfg *policy.Configuration) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minute := l.fresh(l.minutes, identity, now, minuteWindow)
	hour := l.fresh(l.hours, identity, now, hourWindow)

	return Status{
		MinuteCount:     minute.count,
		MinuteRemaining: clampRemaining(cfg.MaxRequestsPerMinute, minute.count),
		MinuteResetAt:   minute.windowEnd,
		HourCount:       hour.count,
		HourRemaining:   clampRemaining(cfg.MaxRequestsPerHour, hour.count),
		HourResetAt:     hour.windowEnd,
	}
}

// Reset clears both windows for an identity.
func (l *Limiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.minutes, identity)
	delete(l.hours, identity)
}

// fresh returns the identity's record for a window, resetting it first if
// the window has rolled over. Caller holds the mutex.
func (l *Limiter) fresh(table map[string]*record, identity string, now time.Time, window time.Duration) *record {
	r, ok := table[identity]
	if !ok || !now.Before(r.windowEnd) {
		r = &record{count: 0, windowEnd: now.Add(window)}
		table[identity] = r
	}
	return r
}

func denied(r *record, now time.Time, reason string) Decision {
	retry := r.windowEnd.Sub(now)
	seconds := int((retry + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return Decision{
		Allowed:           false,
		Reason:            reason,
		RetryAfterSeconds: seconds,
		WindowEnd:         r.windowEnd,
	}
}

func clampRemaining(limit, count int) int {
	if limit <= 0 {
		return 0
	}
	if rem := limit - count; rem > 0 {
		return rem
	}
	return 0
}
