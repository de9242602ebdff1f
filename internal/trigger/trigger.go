// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package trigger

import (
	"encoding/json"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/docuflow/webhook-delivery/internal/metrics"
	"github.com/docuflow/webhook-delivery/model"
)

// Control is the read-only handle the host platform passes alongside each
// transaction batch. It gives the translator access to workspace identity
// and to document state needed for payload and scope resolution.
type Control interface {
	// WorkspaceID identifies the workspace the batch belongs to.
	WorkspaceID() string
	// WorkspaceName is the human-readable workspace name carried in payloads.
	WorkspaceName() string
	// FindObject returns the current state of a document, or nil when it
	// does not exist.
	FindObject(class model.DocumentClass, id string) (json.RawMessage, error)
	// Removed returns the pre-removal state of a deleted document, or nil
	// when the host does not expose it.
	Removed(class model.DocumentClass, id string) json.RawMessage
}

type subscriptionStore interface {
	GetEnabledSubscriptions() ([]*model.Subscription, error)
}

// Translator converts document-change transactions into pending webhook
// events, one per (transaction, matching subscription) pair.
type Translator struct {
	store   subscriptionStore
	metrics *metrics.DeliveryMetrics
	clock   clock.Clock
	logger  log.FieldLogger
}

// New creates a Translator.
func New(store subscriptionStore, deliveryMetrics *metrics.DeliveryMetrics, clk clock.Clock, logger log.FieldLogger) *Translator {
	return &Translator{
		store:   store,
		metrics: deliveryMetrics,
		clock:   clk,
		logger:  logger.WithField("component", "trigger"),
	}
}

// Translate maps a batch of transactions to pending events. It runs on the
// host platform's transaction path, so per-subscription problems are logged
// and skipped rather than surfaced; only a failure to read subscriptions at
// all returns an error.
func (t *Translator) Translate(batch []*model.Transaction, ctl Control) ([]*model.Event, error) {
	subscriptions, err := t.store.GetEnabledSubscriptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load enabled subscriptions")
	}
	if len(subscriptions) == 0 {
		return nil, nil
	}

	now := t.clock.Now().UnixMilli()

	var events []*model.Event
	for _, transaction := range batch {
		if !transaction.ObjectClass.IsObserved() {
			continue
		}

		action, ok := transaction.Action()
		if !ok {
			continue
		}
		eventType := model.EventTypeFor(transaction.ObjectClass, action)

		for _, subscription := range subscriptions {
			event, err := t.translateOne(transaction, eventType, action, subscription, ctl, now)
			if err != nil {
				t.logger.WithError(err).WithFields(log.Fields{
					"subscription": subscription.ID,
					"objectId":     transaction.ObjectID,
					"objectClass":  transaction.ObjectClass,
				}).Warn("Skipping subscription for transaction")
				continue
			}
			if event != nil {
				events = append(events, event)
			}
		}
	}

	if t.metrics != nil && len(events) > 0 {
		t.metrics.EventsTranslatedCounter.Add(float64(len(events)))
	}

	return events, nil
}

// translateOne evaluates one (transaction, subscription) pair, returning nil
// when the subscription does not match.
func (t *Translator) translateOne(transaction *model.Transaction, eventType model.EventType, action model.Action, subscription *model.Subscription, ctl Control, now int64) (*model.Event, error) {
	if !subscription.WantsEventType(eventType) {
		return nil, nil
	}

	matches, err := t.inScope(transaction, subscription, ctl)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve scope")
	}
	if !matches {
		return nil, nil
	}

	object, err := t.resolveObject(transaction, action, ctl)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve object state")
	}

	eventID := model.NewID()
	envelope := &model.PayloadEnvelope{
		Event: model.PayloadEvent{
			ID:          eventID,
			Timestamp:   now,
			Type:        eventType,
			Action:      action,
			ObjectID:    transaction.ObjectID,
			ObjectClass: transaction.ObjectClass,
		},
		Workspace:  ctl.WorkspaceName(),
		ModifiedBy: transaction.ModifiedBy,
		Data: model.PayloadData{
			Action: action,
			Object: object,
		},
	}
	if action == model.ActionUpdated {
		envelope.Data.Operations = transaction.Operations
	}

	payload, err := envelope.ToJSON()
	if err != nil {
		return nil, err
	}

	return &model.Event{
		ID:               eventID,
		Type:             eventType,
		Action:           action,
		ObjectID:         transaction.ObjectID,
		ObjectClass:      transaction.ObjectClass,
		SubscriptionID:   subscription.ID,
		Payload:          payload,
		Status:           model.EventStatusPending,
		Attempts:         0,
		NextAttemptAfter: now,
	}, nil
}

// inScope applies the subscription's optional space and project filters.
// Both must match when both are set.
func (t *Translator) inScope(transaction *model.Transaction, subscription *model.Subscription, ctl Control) (bool, error) {
	if subscription.SpaceID != "" && transaction.SpaceID != subscription.SpaceID {
		return false, nil
	}

	if len(subscription.ProjectIDs) > 0 && transaction.ObjectClass.IsTrackerFamily() {
		projectID, err := resolveProject(transaction)
		if err != nil {
			return false, err
		}
		if !subscription.ProjectIDs.Contains(projectID) {
			return false, nil
		}
	}

	return true, nil
}

// resolveProject finds the owning project of a tracker-family document. A
// project is its own owner; issues, components and milestones live directly
// in their project's space.
func resolveProject(transaction *model.Transaction) (string, error) {
	if transaction.ObjectClass == model.ClassProject {
		return transaction.ObjectID, nil
	}

	if transaction.SpaceID == "" {
		return "", errors.Errorf("transaction for %s %s carries no space", transaction.ObjectClass, transaction.ObjectID)
	}

	return transaction.SpaceID, nil
}

// resolveObject picks the document snapshot carried in data.object: the
// created attributes, the post-update state, or the removed state when the
// host exposes it.
func (t *Translator) resolveObject(transaction *model.Transaction, action model.Action, ctl Control) (json.RawMessage, error) {
	switch action {
	case model.ActionCreated:
		return transaction.Attributes, nil

	case model.ActionUpdated:
		object, err := ctl.FindObject(transaction.ObjectClass, transaction.ObjectID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch post-update state")
		}
		return object, nil

	case model.ActionDeleted:
		return ctl.Removed(transaction.ObjectClass, transaction.ObjectID), nil
	}

	return nil, nil
}
