// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
)

// State describes the admission posture of a breaker.
type State string

const (
	// StateClosed admits all requests.
	StateClosed State = "closed"
	// StateOpen rejects all requests until the open window elapses.
	StateOpen State = "open"
	// StateHalfOpen admits trial requests while deciding whether to re-close.
	StateHalfOpen State = "half-open"
)

const responseTimeWindowSize = 100

// Config holds the tuning knobs of a single endpoint's breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker once RequestVolumeThreshold requests have been observed.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes required to
	// re-close a half-open breaker.
	SuccessThreshold int
	// OpenDuration is how long an open breaker rejects before allowing trials.
	OpenDuration time.Duration
	// RequestVolumeThreshold is the minimum number of observed requests
	// before the breaker evaluates its trip conditions.
	RequestVolumeThreshold int
	// ResponseTimeThreshold marks a response as a failure even on success
	// when it took longer than this, and trips the breaker when the moving
	// average exceeds it.
	ResponseTimeThreshold time.Duration
	// HealthCheckInterval is how often open breakers are probed, when a
	// probe is configured.
	HealthCheckInterval time.Duration
}

// SetDefaults fills any zero-valued fields with production defaults.
func (c *Config) SetDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 3
	}
	if c.OpenDuration == 0 {
		c.OpenDuration = 60 * time.Second
	}
	if c.RequestVolumeThreshold == 0 {
		c.RequestVolumeThreshold = 10
	}
	if c.ResponseTimeThreshold == 0 {
		c.ResponseTimeThreshold = 10 * time.Second
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
}

// Stats is a point-in-time snapshot of a breaker.
type Stats struct {
	State                State         `json:"state"`
	ConsecutiveFailures  int           `json:"consecutiveFailures"`
	ConsecutiveSuccesses int           `json:"consecutiveSuccesses"`
	TotalRequests        int64         `json:"totalRequests"`
	AverageResponseTime  time.Duration `json:"averageResponseTime"`
	RemainingOpen        time.Duration `json:"remainingOpen,omitempty"`
}

// OpenError is returned by Execute when the breaker rejects without running
// the operation. RemainingOpen tells callers how long the endpoint stays
// gated, so they can defer instead of burning an attempt.
type OpenError struct {
	URL           string
	RemainingOpen time.Duration
	Stats         Stats
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s, %s remaining", e.URL, e.RemainingOpen)
}

// Breaker gates outbound calls to a single endpoint URL.
type Breaker struct {
	url   string
	cfg   Config
	clock clock.Clock

	mutex                sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	totalRequests        int64
	openedAt             time.Time

	responseTimes []time.Duration
	responseNext  int
	responseCount int
}

// NewBreaker creates a closed breaker for the given endpoint URL.
func NewBreaker(url string, cfg Config, clk clock.Clock) *Breaker {
	cfg.SetDefaults()

	return &Breaker{
		url:           url,
		cfg:           cfg,
		clock:         clk,
		state:         StateClosed,
		responseTimes: make([]time.Duration, responseTimeWindowSize),
	}
}

// Execute runs op through the breaker, recording its duration and outcome.
// When the breaker is open and the open window has not elapsed, op is not
// run and an *OpenError is returned instead.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if openErr := b.admit(); openErr != nil {
		return openErr
	}

	start := b.clock.Now()
	err := op(ctx)
	elapsed := b.clock.Now().Sub(start)

	b.record(err == nil, elapsed)

	return err
}

// Stats returns a snapshot of the breaker's current state.
func (b *Breaker) Stats() Stats {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.statsLocked()
}

// ForceHalfOpen moves an open breaker to half-open, typically after an
// external health probe succeeded. It has no effect in other states.
func (b *Breaker) ForceHalfOpen() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state == StateOpen {
		b.state = StateHalfOpen
		b.consecutiveSuccesses = 0
	}
}

func (b *Breaker) admit() *OpenError {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state != StateOpen {
		return nil
	}

	remaining := b.cfg.OpenDuration - b.clock.Now().Sub(b.openedAt)
	if remaining <= 0 {
		b.state = StateHalfOpen
		b.consecutiveSuccesses = 0
		return nil
	}

	return &OpenError{
		URL:           b.url,
		RemainingOpen: remaining,
		Stats:         b.statsLocked(),
	}
}

func (b *Breaker) record(success bool, elapsed time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.totalRequests++
	b.observeResponseTime(elapsed)

	// A slow success still counts against the endpoint.
	if success && elapsed > b.cfg.ResponseTimeThreshold {
		success = false
	}

	if !success {
		b.consecutiveFailures++
		b.consecutiveSuccesses = 0

		if b.state == StateHalfOpen {
			b.open()
			return
		}

		if b.state == StateClosed && b.shouldTripLocked() {
			b.open()
		}
		return
	}

	b.consecutiveSuccesses++
	b.consecutiveFailures = 0

	if b.state == StateHalfOpen && b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
		b.state = StateClosed
		b.consecutiveFailures = 0
		b.consecutiveSuccesses = 0
		b.totalRequests = 0
		b.responseNext = 0
		b.responseCount = 0
		return
	}

	if b.state == StateClosed && b.shouldTripLocked() {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.clock.Now()
	b.consecutiveSuccesses = 0
}

func (b *Breaker) shouldTripLocked() bool {
	if b.totalRequests < int64(b.cfg.RequestVolumeThreshold) {
		return false
	}

	return b.consecutiveFailures >= b.cfg.FailureThreshold ||
		b.averageResponseTimeLocked() > b.cfg.ResponseTimeThreshold
}

func (b *Breaker) observeResponseTime(elapsed time.Duration) {
	b.responseTimes[b.responseNext] = elapsed
	b.responseNext = (b.responseNext + 1) % len(b.responseTimes)
	if b.responseCount < len(b.responseTimes) {
		b.responseCount++
	}
}

func (b *Breaker) averageResponseTimeLocked() time.Duration {
	if b.responseCount == 0 {
		return 0
	}

	var total time.Duration
	for i := 0; i < b.responseCount; i++ {
		total += b.responseTimes[i]
	}

	return total / time.Duration(b.responseCount)
}

func (b *Breaker) statsLocked() Stats {
	stats := Stats{
		State:                b.state,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		TotalRequests:        b.totalRequests,
		AverageResponseTime:  b.averageResponseTimeLocked(),
	}
	if b.state == StateOpen {
		if remaining := b.cfg.OpenDuration - b.clock.Now().Sub(b.openedAt); remaining > 0 {
			stats.RemainingOpen = remaining
		}
	}

	return stats
}
