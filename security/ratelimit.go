// Package security implements the rate limiter and content filter boundaries
// a room engine consults before accepting a command.
package security

import (
	"sync"
	"time"
)

// ActionKind selects which sliding window applies.
type ActionKind string

const (
	ActionDescribe ActionKind = "describe"
	ActionVote     ActionKind = "vote"
	ActionDefault  ActionKind = "default"
)

type window struct {
	limit      int
	count      int
	windowSize time.Duration
	resetAt    time.Time
}

func (w *window) check(now time.Time) bool {
	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(w.windowSize)
	}
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}

// RateLimitConfig mirrors security.rate_limits.* in the configuration.
type RateLimitConfig struct {
	DescribeWindow     time.Duration
	DescribeMaxActions int
	VoteWindow         time.Duration
	VoteMaxActions     int
	DefaultWindow      time.Duration
	DefaultMaxActions  int
}

// RateLimiter is a per-(player, action-kind) sliding window, keyed by player id.
type RateLimiter struct {
	mu     sync.Mutex
	cfg    RateLimitConfig
	byKind map[ActionKind]map[string]*window
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg: cfg,
		byKind: map[ActionKind]map[string]*window{
			ActionDescribe: {},
			ActionVote:     {},
			ActionDefault:  {},
		},
	}
}

// Allow reports whether playerID may perform another action of kind now.
func (r *RateLimiter) Allow(playerID string, kind ActionKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kindMap, ok := r.byKind[kind]
	if !ok {
		kindMap = r.byKind[ActionDefault]
	}

	now := time.Now()
	w, ok := kindMap[playerID]
	if !ok {
		size, limit := r.limitsFor(kind)
		w = &window{limit: limit, windowSize: size, resetAt: now.Add(size)}
		kindMap[playerID] = w
	}
	return w.check(now)
}

func (r *RateLimiter) limitsFor(kind ActionKind) (time.Duration, int) {
	switch kind {
	case ActionDescribe:
		return r.cfg.DescribeWindow, r.cfg.DescribeMaxActions
	case ActionVote:
		return r.cfg.VoteWindow, r.cfg.VoteMaxActions
	default:
		return r.cfg.DefaultWindow, r.cfg.DefaultMaxActions
	}
}

// Forget drops all tracked windows for a player, e.g. on Leave.
func (r *RateLimiter) Forget(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kindMap := range r.byKind {
		delete(kindMap, playerID)
	}
}
