// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	log "github.com/sirupsen/logrus"
)

// ProbeFunc checks whether an endpoint URL is healthy again. A nil error
// moves the endpoint's open breaker to half-open.
type ProbeFunc func(ctx context.Context, url string) error

// Manager holds one breaker per endpoint URL and owns the health probe
// timer for open breakers.
type Manager struct {
	cfg    Config
	clock  clock.Clock
	probe  ProbeFunc
	logger log.FieldLogger

	mutex    sync.Mutex
	breakers map[string]*Breaker

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a breaker manager. When probe is nil no health
// checking is performed and open breakers recover by open-window expiry
// alone.
func NewManager(cfg Config, clk clock.Clock, probe ProbeFunc, logger log.FieldLogger) *Manager {
	cfg.SetDefaults()

	manager := &Manager{
		cfg:      cfg,
		clock:    clk,
		probe:    probe,
		logger:   logger.WithField("component", "circuitbreaker"),
		breakers: make(map[string]*Breaker),
		stop:     make(chan struct{}),
	}

	if probe != nil {
		manager.wg.Add(1)
		go manager.healthCheckLoop()
	}

	return manager
}

// GetBreaker returns the breaker for the given URL, creating it on first use.
func (m *Manager) GetBreaker(url string) *Breaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	breaker, ok := m.breakers[url]
	if !ok {
		breaker = NewBreaker(url, m.cfg, m.clock)
		m.breakers[url] = breaker
	}

	return breaker
}

// Stats returns a snapshot of every known breaker, keyed by URL.
func (m *Manager) Stats() map[string]Stats {
	m.mutex.Lock()
	breakers := make(map[string]*Breaker, len(m.breakers))
	for url, breaker := range m.breakers {
		breakers[url] = breaker
	}
	m.mutex.Unlock()

	stats := make(map[string]Stats, len(breakers))
	for url, breaker := range breakers {
		stats[url] = breaker.Stats()
	}

	return stats
}

// Close stops the health probe timer and waits for it to exit.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stop:
			return
		case <-m.clock.After(m.cfg.HealthCheckInterval):
			m.probeOpenBreakers()
		}
	}
}

func (m *Manager) probeOpenBreakers() {
	m.mutex.Lock()
	open := make(map[string]*Breaker)
	for url, breaker := range m.breakers {
		if breaker.Stats().State == StateOpen {
			open[url] = breaker
		}
	}
	m.mutex.Unlock()

	for url, breaker := range open {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := m.probe(ctx, url)
		cancel()

		if err != nil {
			m.logger.WithError(err).WithField("url", url).Debug("health probe failed, endpoint stays gated")
			continue
		}

		m.logger.WithField("url", url).Info("health probe succeeded, allowing trial requests")
		breaker.ForceHalfOpen()
	}
}
