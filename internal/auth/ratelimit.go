// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RateLimiterConfig controls the progressive login limiter.
type RateLimiterConfig struct {
	// MaxAttempts is the failure count that triggers the full lockout.
	MaxAttempts int
	// LockoutDuration is the block applied at MaxAttempts failures.
	LockoutDuration time.Duration
	// EntryTTL is how long an origin's record survives without being
	// read or written before the cleanup loop evicts it.
	EntryTTL time.Duration
	// CleanupInterval is how often expired records are swept.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns the production limiter settings.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxAttempts:     5,
		LockoutDuration: 5 * time.Minute,
		EntryTTL:        time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

type originRecord struct {
	failures     int
	blockedUntil time.Time
	lastAccess   time.Time
}

// RateLimiter tracks failed login attempts per origin address and
// blocks further attempts on an escalating ladder: a short block after
// repeated failures, the configured lockout at the limit, and an hour
// once the limit is doubled. A successful login fully forgives the
// origin.
type RateLimiter struct {
	config RateLimiterConfig

	mu      sync.Mutex
	records map[string]*originRecord

	trackedOrigins prometheus.Gauge

	cleanupStop chan struct{}
	cleanupWG   sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter with metrics registered on the
// default Prometheus registerer.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return NewRateLimiterWithRegistry(config, prometheus.DefaultRegisterer)
}

// NewRateLimiterWithRegistry creates a limiter registering metrics on
// reg. A nil reg disables metrics.
func NewRateLimiterWithRegistry(config RateLimiterConfig, reg prometheus.Registerer) *RateLimiter {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRateLimiterConfig().MaxAttempts
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = DefaultRateLimiterConfig().LockoutDuration
	}
	if config.EntryTTL <= 0 {
		config.EntryTTL = DefaultRateLimiterConfig().EntryTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig().CleanupInterval
	}

	rl := &RateLimiter{
		config:      config,
		records:     make(map[string]*originRecord),
		cleanupStop: make(chan struct{}),
		now:         time.Now,
	}

	if reg != nil {
		rl.trackedOrigins = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vouch_ratelimit_tracked_origins",
			Help: "Number of origin addresses with recorded login failures.",
		})
		reg.MustRegister(rl.trackedOrigins)
	}

	rl.cleanupWG.Add(1)
	go rl.cleanupLoop()

	return rl
}

// BlockRemaining returns how long origin must wait before another
// attempt, or zero when attempts are allowed. Reading refreshes the
// record's idle clock.
func (rl *RateLimiter) BlockRemaining(origin string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.records[origin]
	if !ok {
		return 0
	}
	now := rl.now()
	rec.lastAccess = now
	if rec.blockedUntil.After(now) {
		return rec.blockedUntil.Sub(now)
	}
	return 0
}

// RecordFailure counts a failed attempt for origin and applies the
// block tier the new count lands on.
func (rl *RateLimiter) RecordFailure(origin string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rec, ok := rl.records[origin]
	if !ok {
		rec = &originRecord{}
		rl.records[origin] = rec
		rl.setTracked(len(rl.records))
	}
	rec.failures++
	rec.lastAccess = now

	if d := rl.blockFor(rec.failures); d > 0 {
		rec.blockedUntil = now.Add(d)
	}
}

// blockFor maps a failure count to a block duration. Zero means no
// block at that count.
func (rl *RateLimiter) blockFor(failures int) time.Duration {
	max := rl.config.MaxAttempts
	switch {
	case failures >= max*2:
		return time.Hour
	case failures >= max:
		return rl.config.LockoutDuration
	case failures >= warnThreshold(max):
		return 30 * time.Second
	default:
		return 0
	}
}

func warnThreshold(max int) int {
	if half := max / 2; half > 3 {
		return half
	}
	return 3
}

// RecordSuccess forgives origin entirely, dropping its failure history
// and any active block.
func (rl *RateLimiter) RecordSuccess(origin string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if _, ok := rl.records[origin]; ok {
		delete(rl.records, origin)
		rl.setTracked(len(rl.records))
	}
}

// TrackedOrigins returns how many origins currently have records.
func (rl *RateLimiter) TrackedOrigins() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.records)
}

func (rl *RateLimiter) setTracked(n int) {
	if rl.trackedOrigins != nil {
		rl.trackedOrigins.Set(float64(n))
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.cleanupWG.Done()
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.cleanupStop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.EntryTTL)
	for origin, rec := range rl.records {
		if rec.lastAccess.Before(cutoff) {
			delete(rl.records, origin)
		}
	}
	rl.setTracked(len(rl.records))
}

// Close stops the cleanup goroutine. The limiter must not be used
// after Close.
func (rl *RateLimiter) Close() {
	close(rl.cleanupStop)
	rl.cleanupWG.Wait()
}
