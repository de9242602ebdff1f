// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package scheduler

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// rateLimiter tracks a sliding window of dispatch start times per endpoint
// URL. Unlike a token bucket it can tell a deferred caller exactly when the
// window next frees a slot, which the scheduler uses as the deferred event's
// due time.
type rateLimiter struct {
	clock clock.Clock

	mutex   sync.Mutex
	windows map[string][]time.Time
}

func newRateLimiter(clk clock.Clock) *rateLimiter {
	return &rateLimiter{
		clock:   clk,
		windows: make(map[string][]time.Time),
	}
}

// Allow records a dispatch start for url when the window has capacity. When
// the window is full it returns false and the earliest time a slot frees.
// A limit of zero or less means unlimited.
func (rl *rateLimiter) Allow(url string, limit int, period time.Duration) (bool, time.Time) {
	if limit <= 0 {
		return true, time.Time{}
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.clock.Now()
	cutoff := now.Add(-period)

	window := rl.windows[url]
	pruned := window[:0]
	for _, start := range window {
		if start.After(cutoff) {
			pruned = append(pruned, start)
		}
	}
	window = pruned

	if len(window) < limit {
		rl.windows[url] = append(window, now)
		return true, time.Time{}
	}

	// All retained starts are inside the window. A slot frees when enough
	// of the oldest starts age out to bring the count below the limit.
	earliestExit := window[len(window)-limit].Add(period)
	rl.windows[url] = window

	return false, earliestExit
}

// Release discards the most recent start recorded for url, undoing an Allow
// whose dispatch never happened.
func (rl *rateLimiter) Release(url string) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	window := rl.windows[url]
	if len(window) == 0 {
		return
	}

	rl.windows[url] = window[:len(window)-1]
}
