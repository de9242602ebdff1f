package api

import (
	"github.com/blang/semver"
	"github.com/sirupsen/logrus"

	"github.com/docuflow/webhook-delivery/internal/circuitbreaker"
	"github.com/docuflow/webhook-delivery/model"
)

// Store describes the read access required to serve API requests.
type Store interface {
	GetCurrentVersion() (semver.Version, error)

	GetSubscription(subscriptionID string) (*model.Subscription, error)
	GetSubscriptions(filter *model.SubscriptionsFilter) ([]*model.Subscription, error)
	GetDeliveryStats(subscriptionID string) ([]*model.DeliveryStats, error)

	GetEvent(eventID string) (*model.Event, error)
	GetEvents(filter *model.EventsFilter) ([]*model.Event, error)
	GetDeliveryAttempts(eventID string) ([]*model.DeliveryAttempt, error)
}

// BreakerMonitor exposes breaker snapshots for the health surface.
type BreakerMonitor interface {
	Stats() map[string]circuitbreaker.Stats
}

// Context provides the API with all necessary data and interfaces for responding to requests.
//
// It is cloned before each request, allowing per-request changes such as logger annotations.
type Context struct {
	Store     Store
	Breakers  BreakerMonitor
	RequestID string
	Logger    logrus.FieldLogger
}

// Clone creates a shallow copy of context, allowing clones to apply per-request changes.
func (c *Context) Clone() *Context {
	return &Context{
		Store:    c.Store,
		Breakers: c.Breakers,
		Logger:   c.Logger,
	}
}
