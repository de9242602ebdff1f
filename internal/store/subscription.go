// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/docuflow/webhook-delivery/model"
)

const subscriptionTable = "Subscription"

var subscriptionSelect = sq.Select(
	"ID",
	"URL",
	"Secret",
	"Enabled",
	"EventTypes",
	"SpaceID",
	"ProjectIDs",
	"RetryAttempts",
	"TimeoutMillis",
	"RateLimit",
	"RateLimitPeriodMillis",
	"Headers",
	"CreateAt",
	"UpdateAt",
	"DeleteAt",
).From(subscriptionTable)

// CreateSubscription records the given subscription to the database, assigning it a unique ID.
func (sqlStore *SQLStore) CreateSubscription(subscription *model.Subscription) error {
	if err := subscription.Validate(); err != nil {
		return errors.Wrap(err, "invalid subscription")
	}
	subscription.SetDefaults()

	subscription.ID = model.NewID()
	subscription.CreateAt = model.GetMillis()
	subscription.UpdateAt = subscription.CreateAt

	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Insert(subscriptionTable).
		SetMap(subscriptionColumns(subscription)),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create subscription")
	}

	return nil
}

// UpdateSubscription updates a previously created subscription.
func (sqlStore *SQLStore) UpdateSubscription(subscription *model.Subscription) error {
	if err := subscription.Validate(); err != nil {
		return errors.Wrap(err, "invalid subscription")
	}

	subscription.UpdateAt = model.GetMillis()

	columns := subscriptionColumns(subscription)
	delete(columns, "ID")
	delete(columns, "CreateAt")

	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(subscriptionTable).
		SetMap(columns).
		Where("ID = ?", subscription.ID).
		Where("DeleteAt = 0"),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update subscription")
	}

	return nil
}

func subscriptionColumns(subscription *model.Subscription) map[string]interface{} {
	return map[string]interface{}{
		"ID":                    subscription.ID,
		"URL":                   subscription.URL,
		"Secret":                subscription.Secret,
		"Enabled":               subscription.Enabled,
		"EventTypes":            subscription.EventTypes,
		"SpaceID":               subscription.SpaceID,
		"ProjectIDs":            subscription.ProjectIDs,
		"RetryAttempts":         subscription.RetryAttempts,
		"TimeoutMillis":         subscription.TimeoutMillis,
		"RateLimit":             subscription.RateLimit,
		"RateLimitPeriodMillis": subscription.RateLimitPeriodMillis,
		"Headers":               subscription.Headers,
		"CreateAt":              subscription.CreateAt,
		"UpdateAt":              subscription.UpdateAt,
		"DeleteAt":              subscription.DeleteAt,
	}
}

// GetSubscription fetches the given subscription by id.
func (sqlStore *SQLStore) GetSubscription(id string) (*model.Subscription, error) {
	var subscription model.Subscription
	err := sqlStore.getBuilder(sqlStore.db, &subscription,
		subscriptionSelect.Where("ID = ?", id),
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get subscription by id")
	}

	return &subscription, nil
}

// GetSubscriptions fetches subscriptions specified by the filter.
func (sqlStore *SQLStore) GetSubscriptions(filter *model.SubscriptionsFilter) ([]*model.Subscription, error) {
	builder := subscriptionSelect.OrderBy("CreateAt DESC")
	builder = applyPagingFilter(builder, filter.Paging)

	if filter.EnabledOnly {
		builder = builder.Where("Enabled = ?", true)
	}

	subscriptions := []*model.Subscription{}
	err := sqlStore.selectBuilder(sqlStore.db, &subscriptions, builder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query for subscriptions")
	}

	if filter.EventType != "" {
		filtered := subscriptions[:0]
		for _, subscription := range subscriptions {
			if subscription.WantsEventType(filter.EventType) {
				filtered = append(filtered, subscription)
			}
		}
		subscriptions = filtered
	}

	return subscriptions, nil
}

// GetEnabledSubscriptions fetches all enabled, not deleted subscriptions,
// newest modification first.
func (sqlStore *SQLStore) GetEnabledSubscriptions() ([]*model.Subscription, error) {
	subscriptions := []*model.Subscription{}
	err := sqlStore.selectBuilder(sqlStore.db, &subscriptions,
		subscriptionSelect.
			Where("Enabled = ?", true).
			Where("DeleteAt = 0").
			OrderBy("UpdateAt DESC"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query for enabled subscriptions")
	}

	return subscriptions, nil
}

// DeleteSubscription marks the given subscription as deleted, but does not remove the
// record from the database.
func (sqlStore *SQLStore) DeleteSubscription(id string) error {
	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(subscriptionTable).
		Set("DeleteAt", model.GetMillis()).
		Where("ID = ?", id).
		Where("DeleteAt = 0"),
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark subscription as deleted")
	}

	return nil
}
