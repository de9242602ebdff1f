// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/docuflow/webhook-delivery/internal/circuitbreaker"
	"github.com/docuflow/webhook-delivery/internal/metrics"
	"github.com/docuflow/webhook-delivery/model"
)

const (
	contentTypeApplicationJSON = "application/json; charset=utf-8"

	headerWebhookEvent     = "X-Webhook-Event"
	headerWebhookID        = "X-Webhook-Id"
	headerWebhookSignature = "X-Webhook-Signature"
)

// OutcomeClass partitions delivery attempt results for the scheduler.
type OutcomeClass string

const (
	// OutcomeSuccess means the consumer acknowledged with a 2xx.
	OutcomeSuccess OutcomeClass = "success"
	// OutcomeRetryable means the attempt failed in a way worth retrying.
	OutcomeRetryable OutcomeClass = "retryable"
	// OutcomePermanent means retrying cannot help.
	OutcomePermanent OutcomeClass = "permanent"
	// OutcomeCancelled means the attempt was interrupted by shutdown.
	OutcomeCancelled OutcomeClass = "cancelled"
)

// Outcome is the structured result of a single delivery attempt.
type Outcome struct {
	Class        OutcomeClass
	HTTPStatus   int
	ResponseTime time.Duration
	// RetryAfter is a consumer- or breaker-imposed deferral. Zero means
	// the scheduler picks its own backoff.
	RetryAfter time.Duration
	Err        error
}

type dispatcherStore interface {
	CreateDeliveryAttempt(attempt *model.DeliveryAttempt) error
	UpsertDeliveryStats(subscriptionID, period string, delta *model.StatsDelta) error
}

// Dispatcher executes single delivery attempts over HTTP, routing each call
// through the endpoint's circuit breaker.
type Dispatcher struct {
	store    dispatcherStore
	breakers *circuitbreaker.Manager
	metrics  *metrics.DeliveryMetrics
	client   *http.Client
	clock    clock.Clock
	logger   log.FieldLogger
}

// New creates a Dispatcher. The http.Client carries no global timeout; each
// attempt is bounded by the subscription's own timeout via context.
func New(store dispatcherStore, breakers *circuitbreaker.Manager, deliveryMetrics *metrics.DeliveryMetrics, clk clock.Clock, logger log.FieldLogger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		breakers: breakers,
		metrics:  deliveryMetrics,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clock:  clk,
		logger: logger.WithField("component", "dispatcher"),
	}
}

// Dispatch performs one delivery attempt for the given event against its
// subscription snapshot. Exactly one DeliveryAttempt is recorded per call,
// and the subscription's rolling stats are updated best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, event *model.Event, subscription *model.Subscription) *Outcome {
	logger := d.logger.WithFields(log.Fields{
		"event":        event.ID,
		"subscription": subscription.ID,
	})

	requestAt := d.clock.Now().UnixMilli()
	breaker := d.breakers.GetBreaker(subscription.URL)

	attempt := &model.DeliveryAttempt{
		EventID:       event.ID,
		AttemptNumber: event.Attempts,
		RequestAt:     requestAt,
	}

	outcome := &Outcome{}
	start := d.clock.Now()
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return d.send(ctx, event, subscription, attempt)
	})
	outcome.ResponseTime = d.clock.Now().Sub(start)
	attempt.ResponseTimeMillis = outcome.ResponseTime.Milliseconds()

	d.classify(ctx, err, attempt, outcome)

	attempt.Success = outcome.Class == OutcomeSuccess
	attempt.HTTPStatus = outcome.HTTPStatus
	if outcome.Err != nil {
		attempt.Error = outcome.Err.Error()
	}

	if err := d.store.CreateDeliveryAttempt(attempt); err != nil {
		logger.WithError(err).Error("Failed to record delivery attempt")
	}

	delta := &model.StatsDelta{
		Delivered:          attempt.Success,
		ResponseTimeMillis: attempt.ResponseTimeMillis,
		AttemptAt:          requestAt,
	}
	if err := d.store.UpsertDeliveryStats(subscription.ID, model.StatsPeriodForMillis(requestAt), delta); err != nil {
		logger.WithError(err).Error("Failed to update delivery stats")
	}

	if d.metrics != nil {
		d.metrics.DeliveryAttemptsCounter.WithLabelValues(string(outcome.Class)).Inc()
		d.metrics.DeliveryDurationHist.Observe(outcome.ResponseTime.Seconds())
		d.metrics.BreakerStateGauge.WithLabelValues(subscription.URL).Set(breakerStateValue(breaker.Stats().State))
	}

	logger.WithFields(log.Fields{
		"outcome":    outcome.Class,
		"httpStatus": outcome.HTTPStatus,
		"attempt":    attempt.AttemptNumber,
	}).Debug("Delivery attempt finished")

	return outcome
}

// statusErr carries the consumer's HTTP response through the breaker's error
// return so classification can see it.
type statusErr struct {
	status     int
	retryAfter time.Duration
	body       string
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("consumer responded with status %d", e.status)
}

func (d *Dispatcher) send(ctx context.Context, event *model.Event, subscription *model.Subscription, attempt *model.DeliveryAttempt) error {
	ctx, cancel := context.WithTimeout(ctx, subscription.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, subscription.URL, bytes.NewReader(event.Payload))
	if err != nil {
		return errors.Wrap(err, "unable to create request from payload")
	}

	req.Header.Set("Content-Type", contentTypeApplicationJSON)
	req.Header.Set(headerWebhookEvent, string(event.Type))
	req.Header.Set(headerWebhookID, event.ID)
	if subscription.Secret != "" {
		req.Header.Set(headerWebhookSignature, model.SignPayload(subscription.Secret, event.Payload))
	}
	for key, value := range subscription.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to deliver event")
	}
	defer drainBody(resp.Body)

	attempt.ResponseBody = model.TruncateResponseBody(attemptToReadBody(resp.Body))
	attempt.ResponseHeaders = flattenHeaders(resp.Header)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.HTTPStatus = resp.StatusCode
		return nil
	}

	return &statusErr{
		status:     resp.StatusCode,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), d.clock.Now()),
		body:       attempt.ResponseBody,
	}
}

func (d *Dispatcher) classify(ctx context.Context, err error, attempt *model.DeliveryAttempt, outcome *Outcome) {
	if err == nil {
		outcome.Class = OutcomeSuccess
		outcome.HTTPStatus = attempt.HTTPStatus
		return
	}

	var openErr *circuitbreaker.OpenError
	if errors.As(err, &openErr) {
		outcome.Class = OutcomeRetryable
		outcome.RetryAfter = openErr.RemainingOpen
		outcome.Err = openErr
		return
	}

	var respErr *statusErr
	if errors.As(err, &respErr) {
		outcome.HTTPStatus = respErr.status
		outcome.Err = errors.Errorf("consumer responded with status %d, body: %s", respErr.status, respErr.body)

		switch {
		case respErr.status == http.StatusRequestTimeout,
			respErr.status == http.StatusTooEarly:
			outcome.Class = OutcomeRetryable
		case respErr.status == http.StatusTooManyRequests:
			outcome.Class = OutcomeRetryable
			outcome.RetryAfter = respErr.retryAfter
		case respErr.status >= 500:
			outcome.Class = OutcomeRetryable
		default:
			// All remaining 3xx/4xx statuses: redirects are not followed
			// and client errors will not heal on retry.
			outcome.Class = OutcomePermanent
		}
		return
	}

	// The parent context is only cancelled on shutdown; a deadline comes
	// from the per-attempt timeout and counts as a plain timeout.
	if ctx.Err() == context.Canceled {
		outcome.Class = OutcomeCancelled
		outcome.Err = errors.Wrap(err, "delivery cancelled by shutdown")
		return
	}

	outcome.Class = OutcomeRetryable
	outcome.Err = err
}

// parseRetryAfter handles both the delay-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if delay := at.Sub(now); delay > 0 {
			return delay
		}
	}

	return 0
}

func flattenHeaders(header http.Header) model.StringMap {
	flattened := make(model.StringMap, len(header))
	for key := range header {
		flattened[key] = header.Get(key)
	}
	return flattened
}

func breakerStateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.StateOpen:
		return 2
	case circuitbreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

func attemptToReadBody(reader io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(reader, model.ResponseBodyLimit))
	if err != nil {
		return []byte(fmt.Sprintf("failed to read body: %s", err.Error()))
	}
	return body
}

func drainBody(readCloser io.ReadCloser) {
	_, _ = io.ReadAll(readCloser)
	_ = readCloser.Close()
}
