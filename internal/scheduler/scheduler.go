// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	log "github.com/sirupsen/logrus"

	"github.com/docuflow/webhook-delivery/internal/dispatcher"
	"github.com/docuflow/webhook-delivery/internal/metrics"
	"github.com/docuflow/webhook-delivery/model"
)

const (
	defaultWorkers       = 5
	defaultPollBatchSize = 100
	defaultBaseDelay     = 1 * time.Second
	defaultMaxDelay      = 5 * time.Minute
	defaultDrainTimeout  = 30 * time.Second

	busyTick = 100 * time.Millisecond
	idleTick = 2 * time.Second
)

type schedulerStore interface {
	GetDueEvents(now int64, limit uint64) ([]*model.Event, error)
	AcquireEvent(event *model.Event, now int64) (bool, error)
	UpdateEventDelivery(event *model.Event) error
	DeferEvent(event *model.Event, nextAttemptAfter int64) error
	GetSubscription(id string) (*model.Subscription, error)
}

type eventDispatcher interface {
	Dispatch(ctx context.Context, event *model.Event, subscription *model.Subscription) *dispatcher.Outcome
}

// Config holds the tuning knobs of the delivery scheduler.
type Config struct {
	// Workers bounds the number of concurrent delivery attempts.
	Workers int
	// PollBatchSize bounds how many due events a single tick fetches.
	PollBatchSize uint64
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the retry delay, including consumer-requested ones.
	MaxDelay time.Duration
	// DrainTimeout bounds how long Stop waits for in-flight attempts
	// before cancelling them.
	DrainTimeout time.Duration
}

// SetDefaults fills any zero-valued fields with production defaults.
func (c *Config) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.PollBatchSize == 0 {
		c.PollBatchSize = defaultPollBatchSize
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
}

type token struct{}

// Scheduler drives events through their delivery state machine: it polls
// due events, admits them under per-endpoint serialization and rate limits,
// and applies the dispatcher's outcome.
type Scheduler struct {
	store      schedulerStore
	dispatcher eventDispatcher
	metrics    *metrics.DeliveryMetrics
	clock      clock.Clock
	limiter    *rateLimiter
	cfg        Config
	logger     log.FieldLogger

	mutex        sync.Mutex
	started      bool
	stop         chan struct{}
	wake         chan struct{}
	loopDone     chan struct{}
	workerCancel context.CancelFunc
	workers      sync.WaitGroup

	inFlightMutex sync.Mutex
	inFlightURLs  map[string]struct{}
}

// New creates a Scheduler. Start must be called before events are processed.
func New(store schedulerStore, eventDispatcher eventDispatcher, deliveryMetrics *metrics.DeliveryMetrics, clk clock.Clock, cfg Config, logger log.FieldLogger) *Scheduler {
	cfg.SetDefaults()

	return &Scheduler{
		store:        store,
		dispatcher:   eventDispatcher,
		metrics:      deliveryMetrics,
		clock:        clk,
		limiter:      newRateLimiter(clk),
		cfg:          cfg,
		logger:       logger.WithField("component", "scheduler"),
		wake:         make(chan struct{}, 1),
		inFlightURLs: make(map[string]struct{}),
	}
}

// Start launches the control loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return
	}
	s.started = true

	workerCtx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})

	go s.loop(workerCtx)

	s.logger.WithField("workers", s.cfg.Workers).Info("Delivery scheduler started")
}

// Stop halts polling and drains in-flight attempts. Attempts still running
// after the drain timeout are cancelled; their events roll back to
// failed-retryable. Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.started {
		s.mutex.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	loopDone := s.loopDone
	cancel := s.workerCancel
	s.mutex.Unlock()

	<-loopDone

	drained := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("Drain timeout reached, cancelling in-flight deliveries")
		cancel()
		<-drained
	}
	cancel()

	s.logger.Info("Delivery scheduler stopped")
}

// Enqueue nudges the control loop to poll immediately, avoiding one tick of
// latency for just-created events. The event itself is picked up from the
// store like any other due event.
func (s *Scheduler) Enqueue(event *model.Event) {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(workerCtx context.Context) {
	defer close(s.loopDone)

	semaphore := make(chan token, s.cfg.Workers)

	for {
		admitted := s.processDue(workerCtx, semaphore)

		tick := idleTick
		if admitted > 0 {
			tick = busyTick
		}

		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-s.clock.After(tick):
		}
	}
}

// processDue runs one scheduling tick and returns how many events were
// handed to workers.
func (s *Scheduler) processDue(workerCtx context.Context, semaphore chan token) int {
	now := s.clock.Now().UnixMilli()

	events, err := s.store.GetDueEvents(now, s.cfg.PollBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to poll due events")
		return 0
	}

	if s.metrics != nil {
		s.metrics.QueueDepthGauge.Set(float64(len(events)))
	}

	admitted := 0
	for _, event := range events {
		select {
		case <-s.stop:
			return admitted
		default:
		}

		if s.admit(workerCtx, event, semaphore) {
			admitted++
		}
	}

	return admitted
}

// admit gates one due event through subscription lookup, per-endpoint
// serialization, rate limiting, and the conditional in-flight transition.
func (s *Scheduler) admit(workerCtx context.Context, event *model.Event, semaphore chan token) bool {
	logger := s.logger.WithField("event", event.ID)

	subscription, err := s.store.GetSubscription(event.SubscriptionID)
	if err != nil {
		logger.WithError(err).Error("Failed to look up subscription for due event")
		return false
	}
	if subscription == nil || !subscription.Enabled || subscription.IsDeleted() {
		s.deadLetter(event, "subscription gone", logger)
		return false
	}

	// A cancelled attempt consumes its slot in the retry budget; events
	// re-queued past their budget terminate here instead of dispatching.
	if event.Attempts >= subscription.RetryAttempts+1 {
		s.deadLetter(event, "retry attempts exhausted", logger)
		return false
	}

	if !s.markURLInFlight(subscription.URL) {
		// One attempt per endpoint at a time; this event stays due and
		// is reconsidered next tick.
		return false
	}

	allowed, earliestExit := s.limiter.Allow(subscription.URL, subscription.RateLimit, subscription.RateLimitPeriod())
	if !allowed {
		s.releaseURL(subscription.URL)
		if err := s.store.DeferEvent(event, earliestExit.UnixMilli()); err != nil {
			logger.WithError(err).Error("Failed to defer rate-limited event")
		}
		return false
	}

	acquired, err := s.store.AcquireEvent(event, now(s.clock))
	if err != nil {
		s.limiter.Release(subscription.URL)
		s.releaseURL(subscription.URL)
		logger.WithError(err).Error("Failed to acquire due event")
		return false
	}
	if !acquired {
		// Another pass already owns this event. Give the rate-limit slot
		// back since no dispatch happened.
		s.limiter.Release(subscription.URL)
		s.releaseURL(subscription.URL)
		return false
	}

	semaphore <- token{}
	s.workers.Add(1)
	go func() {
		defer func() {
			s.releaseURL(subscription.URL)
			<-semaphore
			s.workers.Done()
		}()

		outcome := s.dispatcher.Dispatch(workerCtx, event, subscription)
		s.applyOutcome(event, subscription, outcome, logger)
	}()

	return true
}

func (s *Scheduler) applyOutcome(event *model.Event, subscription *model.Subscription, outcome *dispatcher.Outcome, logger log.FieldLogger) {
	switch outcome.Class {
	case dispatcher.OutcomeSuccess:
		event.Status = model.EventStatusDelivered
		event.LastError = ""
		event.NextAttemptAfter = 0

	case dispatcher.OutcomePermanent:
		s.deadLetter(event, outcome.Err.Error(), logger)
		return

	case dispatcher.OutcomeRetryable:
		if event.Attempts >= subscription.RetryAttempts+1 {
			s.deadLetter(event, outcome.Err.Error(), logger)
			return
		}

		delay := delayForAttempt(event.Attempts, s.cfg.BaseDelay, s.cfg.MaxDelay)
		if outcome.RetryAfter > 0 {
			delay = outcome.RetryAfter
			if delay > s.cfg.MaxDelay {
				delay = s.cfg.MaxDelay
			}
		}

		event.Status = model.EventStatusFailedRetryable
		event.NextAttemptAfter = now(s.clock) + delay.Milliseconds()
		event.LastError = outcome.Err.Error()

	case dispatcher.OutcomeCancelled:
		// The attempt was interrupted by shutdown; re-queue shortly so a
		// restarted scheduler picks it back up.
		event.Status = model.EventStatusFailedRetryable
		event.NextAttemptAfter = now(s.clock) + s.cfg.BaseDelay.Milliseconds()
		event.LastError = outcome.Err.Error()
	}

	if err := s.store.UpdateEventDelivery(event); err != nil {
		logger.WithError(err).Error("Failed to update event after delivery attempt")
	}
}

func (s *Scheduler) deadLetter(event *model.Event, reason string, logger log.FieldLogger) {
	event.Status = model.EventStatusDeadLettered
	event.LastError = reason

	if err := s.store.UpdateEventDelivery(event); err != nil {
		logger.WithError(err).Error("Failed to dead-letter event")
		return
	}

	if s.metrics != nil {
		s.metrics.EventsDeadLetteredCounter.Inc()
	}

	logger.WithField("reason", reason).Warn("Event dead-lettered")
}

func (s *Scheduler) markURLInFlight(url string) bool {
	s.inFlightMutex.Lock()
	defer s.inFlightMutex.Unlock()

	if _, busy := s.inFlightURLs[url]; busy {
		return false
	}
	s.inFlightURLs[url] = struct{}{}

	return true
}

func (s *Scheduler) releaseURL(url string) {
	s.inFlightMutex.Lock()
	defer s.inFlightMutex.Unlock()

	delete(s.inFlightURLs, url)
}

func now(clk clock.Clock) int64 {
	return clk.Now().UnixMilli()
}
