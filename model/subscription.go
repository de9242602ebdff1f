// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"encoding/json"
	"io"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultRetryAttempts is the number of retries granted to a subscription
	// that does not configure its own.
	DefaultRetryAttempts = 3
	// DefaultTimeoutMillis is the per-attempt HTTP timeout granted to a
	// subscription that does not configure its own.
	DefaultTimeoutMillis = 30000
)

// Subscription is a configured webhook target.
type Subscription struct {
	ID      string
	URL     string
	Secret  string
	Enabled bool
	// EventTypes restricts the subscription to the listed event types. An
	// empty set matches every type.
	EventTypes StringList
	// SpaceID scopes the subscription to changes within a single space.
	SpaceID string
	// ProjectIDs scopes the subscription to documents owned by the listed
	// tracker projects.
	ProjectIDs            StringList
	RetryAttempts         int
	TimeoutMillis         int64
	RateLimit             int
	RateLimitPeriodMillis int64
	Headers               StringMap
	CreateAt              int64
	UpdateAt              int64
	DeleteAt              int64
}

// IsDeleted returns true if the subscription is deleted.
func (s *Subscription) IsDeleted() bool {
	return s.DeleteAt > 0
}

// Timeout returns the per-attempt HTTP timeout.
func (s *Subscription) Timeout() time.Duration {
	millis := s.TimeoutMillis
	if millis <= 0 {
		millis = DefaultTimeoutMillis
	}
	return time.Duration(millis) * time.Millisecond
}

// RateLimitPeriod returns the sliding window length for rate limiting.
func (s *Subscription) RateLimitPeriod() time.Duration {
	return time.Duration(s.RateLimitPeriodMillis) * time.Millisecond
}

// WantsEventType reports whether the subscription's event-type filter admits
// the given type.
func (s *Subscription) WantsEventType(eventType EventType) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	return s.EventTypes.Contains(string(eventType))
}

// HasScope reports whether the subscription carries any scope filter.
func (s *Subscription) HasScope() bool {
	return s.SpaceID != "" || len(s.ProjectIDs) > 0
}

// Validate rejects configurations that could never deliver. Runtime code
// relies on this running at write time, so configuration errors are never
// produced during dispatch.
func (s *Subscription) Validate() error {
	parsed, err := url.ParseRequestURI(s.URL)
	if err != nil {
		return errors.Wrap(err, "subscription URL is not parsable")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.Errorf("subscription URL scheme %q is not supported", parsed.Scheme)
	}
	if s.RetryAttempts < 0 {
		return errors.New("retryAttempts must not be negative")
	}
	if s.TimeoutMillis < 0 {
		return errors.New("timeout must not be negative")
	}
	if s.RateLimit < 0 {
		return errors.New("rateLimit must not be negative")
	}
	if s.RateLimitPeriodMillis < 0 {
		return errors.New("rateLimitPeriod must not be negative")
	}
	if s.RateLimit > 0 && s.RateLimitPeriodMillis == 0 {
		return errors.New("rateLimitPeriod is required when rateLimit is set")
	}
	return nil
}

// SetDefaults fills zero-valued limits with their defaults.
func (s *Subscription) SetDefaults() {
	if s.RetryAttempts == 0 {
		s.RetryAttempts = DefaultRetryAttempts
	}
	if s.TimeoutMillis == 0 {
		s.TimeoutMillis = DefaultTimeoutMillis
	}
}

// SubscriptionsFilter is a filter for subscription queries.
type SubscriptionsFilter struct {
	Paging
	EventType   EventType
	EnabledOnly bool
}

// NewSubscriptionFromReader will create a Subscription from an io.Reader with
// JSON data.
func NewSubscriptionFromReader(reader io.Reader) (*Subscription, error) {
	var subscription Subscription
	err := json.NewDecoder(reader).Decode(&subscription)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode Subscription")
	}

	return &subscription, nil
}

// NewSubscriptionsFromReader will create a slice of Subscriptions from an
// io.Reader with JSON data.
func NewSubscriptionsFromReader(reader io.Reader) ([]*Subscription, error) {
	subscriptions := []*Subscription{}
	err := json.NewDecoder(reader).Decode(&subscriptions)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode Subscriptions")
	}

	return subscriptions, nil
}
