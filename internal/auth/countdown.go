// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nozz/vouch/internal/dispatch"
)

// Countdown runs one ticker per pending player and dispatches tick and
// expiry callbacks onto the primary loop. Starting a countdown for a
// player that already has one replaces it.
type Countdown struct {
	loop     dispatch.Executor
	interval time.Duration

	mu     sync.Mutex
	timers map[ulid.ULID]chan struct{}
	wg     sync.WaitGroup
}

// NewCountdown creates a countdown ticking on loop once per second.
func NewCountdown(loop dispatch.Executor) *Countdown {
	return &Countdown{
		loop:     loop,
		interval: time.Second,
		timers:   make(map[ulid.ULID]chan struct{}),
	}
}

// Start begins a countdown of total seconds for playerID. tick runs on
// the loop immediately with the full total, then after each elapsed
// second with the seconds remaining; expired runs on the loop at most
// once when the countdown reaches zero without being canceled. A total
// of zero or less expires immediately without ticking.
func (c *Countdown) Start(playerID ulid.ULID, total int, tick func(remaining int), expired func()) {
	if total <= 0 {
		c.Cancel(playerID)
		c.loop.Dispatch(expired)
		return
	}

	stop := make(chan struct{})

	c.mu.Lock()
	if prev, ok := c.timers[playerID]; ok {
		close(prev)
	}
	c.timers[playerID] = stop
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(playerID, stop, total, tick, expired)
}

func (c *Countdown) run(playerID ulid.ULID, stop chan struct{}, total int, tick func(remaining int), expired func()) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// The player sees the full countdown right away, not after the
	// first elapsed second.
	c.loop.Dispatch(func() { tick(total) })

	remaining := total
	for {
		select {
		case <-ticker.C:
			remaining--
			r := remaining
			c.loop.Dispatch(func() { tick(r) })
			if remaining <= 0 {
				c.remove(playerID, stop)
				c.loop.Dispatch(expired)
				return
			}
		case <-stop:
			return
		}
	}
}

// Cancel stops playerID's countdown if one is running.
func (c *Countdown) Cancel(playerID ulid.ULID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.timers[playerID]; ok {
		close(stop)
		delete(c.timers, playerID)
	}
}

// remove clears the registration only if it still points at stop, so a
// replacement countdown started meanwhile survives.
func (c *Countdown) remove(playerID ulid.ULID, stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.timers[playerID]; ok && cur == stop {
		delete(c.timers, playerID)
	}
}

// Close cancels every countdown and waits for the ticker goroutines to
// exit.
func (c *Countdown) Close() {
	c.mu.Lock()
	for id, stop := range c.timers {
		close(stop)
		delete(c.timers, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
