// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/webhook-delivery/internal/testlib"
)

var errRemote = errors.New("remote returned 500")

func fail(ctx context.Context) error    { return errRemote }
func succeed(ctx context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	breaker := NewBreaker("https://example.com/hook", Config{}, clk)

	// Nine straight failures exceed the failure threshold but not the
	// request volume threshold, so the breaker stays closed.
	for i := 0; i < 9; i++ {
		err := breaker.Execute(context.Background(), fail)
		require.ErrorIs(t, err, errRemote)
	}
	assert.Equal(t, StateClosed, breaker.Stats().State)

	err := breaker.Execute(context.Background(), fail)
	require.ErrorIs(t, err, errRemote)
	assert.Equal(t, StateOpen, breaker.Stats().State)
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	breaker := NewBreaker("https://example.com/hook", Config{}, clk)

	for i := 0; i < 10; i++ {
		_ = breaker.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, breaker.Stats().State)

	ran := false
	err := breaker.Execute(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, ran)

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "https://example.com/hook", openErr.URL)
	assert.True(t, openErr.RemainingOpen > 0)
	assert.True(t, openErr.RemainingOpen <= 60*time.Second)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	breaker := NewBreaker("https://example.com/hook", Config{}, clk)

	for i := 0; i < 10; i++ {
		_ = breaker.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, breaker.Stats().State)

	clk.Advance(61 * time.Second)

	// First trial after the open window runs and moves to half-open.
	err := breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, breaker.Stats().State)

	err = breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, breaker.Stats().State)

	err = breaker.Execute(context.Background(), succeed)
	require.NoError(t, err)

	stats := breaker.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, int64(0), stats.TotalRequests)
	assert.Equal(t, 0, stats.ConsecutiveFailures)
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	breaker := NewBreaker("https://example.com/hook", Config{}, clk)

	for i := 0; i < 10; i++ {
		_ = breaker.Execute(context.Background(), fail)
	}
	clk.Advance(61 * time.Second)

	err := breaker.Execute(context.Background(), fail)
	require.ErrorIs(t, err, errRemote)
	require.Equal(t, StateOpen, breaker.Stats().State)

	// The open timer restarted, so the full window applies again.
	clk.Advance(30 * time.Second)
	var openErr *OpenError
	err = breaker.Execute(context.Background(), succeed)
	require.ErrorAs(t, err, &openErr)
	assert.True(t, openErr.RemainingOpen > 29*time.Second)
}

func TestBreakerTreatsSlowSuccessAsFailure(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	breaker := NewBreaker("https://example.com/hook", Config{}, clk)

	slow := func(ctx context.Context) error {
		clk.Advance(11 * time.Second)
		return nil
	}

	for i := 0; i < 10; i++ {
		err := breaker.Execute(context.Background(), slow)
		require.NoError(t, err)
	}

	stats := breaker.Stats()
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, 11*time.Second, stats.AverageResponseTime)
}

func TestManagerReusesBreakersPerURL(t *testing.T) {
	logger := testlib.MakeLogger(t)
	clk := testclock.NewClock(time.Now())
	manager := NewManager(Config{}, clk, nil, logger)
	defer manager.Close()

	breaker1 := manager.GetBreaker("https://a.example.com")
	breaker2 := manager.GetBreaker("https://b.example.com")
	assert.NotSame(t, breaker1, breaker2)
	assert.Same(t, breaker1, manager.GetBreaker("https://a.example.com"))

	stats := manager.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, StateClosed, stats["https://a.example.com"].State)
}

func TestManagerProbesOpenBreakers(t *testing.T) {
	logger := testlib.MakeLogger(t)
	clk := testclock.NewClock(time.Now())

	probed := make(chan string, 1)
	probe := func(ctx context.Context, url string) error {
		probed <- url
		return nil
	}

	manager := NewManager(Config{}, clk, probe, logger)
	defer manager.Close()

	breaker := manager.GetBreaker("https://example.com/hook")
	for i := 0; i < 10; i++ {
		_ = breaker.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, breaker.Stats().State)

	err := clk.WaitAdvance(30*time.Second, time.Second, 1)
	require.NoError(t, err)

	select {
	case url := <-probed:
		assert.Equal(t, "https://example.com/hook", url)
	case <-time.After(time.Second):
		t.Fatal("health probe never ran")
	}

	// The successful probe lets trial requests through before the open
	// window has elapsed.
	require.Eventually(t, func() bool {
		return breaker.Stats().State == StateHalfOpen
	}, time.Second, 10*time.Millisecond)
}
