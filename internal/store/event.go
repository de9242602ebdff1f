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

const eventTable = "Event"

var eventSelect = sq.Select(
	"ID",
	"Type",
	"Action",
	"ObjectID",
	"ObjectClass",
	"SubscriptionID",
	"Payload",
	"Status",
	"Attempts",
	"LastAttemptedAt",
	"NextAttemptAfter",
	"LastError",
	"CreateAt",
).From(eventTable)

// CreateEvents persists a batch of freshly translated events in one
// transaction. IDs and creation timestamps are assigned here.
func (sqlStore *SQLStore) CreateEvents(events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := sqlStore.beginTransaction(sqlStore.db)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.RollbackUnlessCommitted()

	now := model.GetMillis()
	for _, event := range events {
		if event.ID == "" {
			event.ID = model.NewID()
		}
		event.CreateAt = now

		_, err = sqlStore.execBuilder(tx, sq.
			Insert(eventTable).
			SetMap(map[string]interface{}{
				"ID":               event.ID,
				"Type":             event.Type,
				"Action":           event.Action,
				"ObjectID":         event.ObjectID,
				"ObjectClass":      event.ObjectClass,
				"SubscriptionID":   event.SubscriptionID,
				"Payload":          event.Payload,
				"Status":           event.Status,
				"Attempts":         event.Attempts,
				"LastAttemptedAt":  event.LastAttemptedAt,
				"NextAttemptAfter": event.NextAttemptAfter,
				"LastError":        event.LastError,
				"CreateAt":         event.CreateAt,
			}),
		)
		if err != nil {
			return errors.Wrap(err, "failed to create event")
		}
	}

	err = tx.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// GetEvent fetches the given event by id.
func (sqlStore *SQLStore) GetEvent(id string) (*model.Event, error) {
	var event model.Event
	err := sqlStore.getBuilder(sqlStore.db, &event, eventSelect.Where("ID = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get event by id")
	}

	return &event, nil
}

// GetEvents fetches events specified by the filter, newest first.
func (sqlStore *SQLStore) GetEvents(filter *model.EventsFilter) ([]*model.Event, error) {
	builder := eventSelect.OrderBy("CreateAt DESC")
	if filter.Paging.PerPage != model.AllPerPage {
		builder = builder.
			Limit(uint64(filter.Paging.PerPage)).
			Offset(uint64(filter.Paging.Page * filter.Paging.PerPage))
	}
	if filter.SubscriptionID != "" {
		builder = builder.Where("SubscriptionID = ?", filter.SubscriptionID)
	}
	if filter.Status != "" {
		builder = builder.Where("Status = ?", filter.Status)
	}

	events := []*model.Event{}
	err := sqlStore.selectBuilder(sqlStore.db, &events, builder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query for events")
	}

	return events, nil
}

// GetDueEvents fetches events awaiting dispatch: pending or retryable, with
// NextAttemptAfter at or before now, in due order then creation order. The
// creation-order tie break preserves per-object delivery order for events
// that became due in the same instant.
func (sqlStore *SQLStore) GetDueEvents(now int64, limit uint64) ([]*model.Event, error) {
	events := []*model.Event{}
	err := sqlStore.selectBuilder(sqlStore.db, &events,
		eventSelect.
			Where(sq.Eq{"Status": []model.EventStatus{model.EventStatusPending, model.EventStatusFailedRetryable}}).
			Where("NextAttemptAfter <= ?", now).
			OrderBy("NextAttemptAfter ASC", "CreateAt ASC").
			Limit(limit),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query for due events")
	}

	return events, nil
}

// AcquireEvent attempts to transition the event to in-flight with a
// compare-and-set on (id, status, attempts). On success the event's mutable
// fields are updated in place. Returns false when another worker already
// moved the event on.
func (sqlStore *SQLStore) AcquireEvent(event *model.Event, now int64) (bool, error) {
	result, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(eventTable).
		SetMap(map[string]interface{}{
			"Status":          model.EventStatusInFlight,
			"Attempts":        event.Attempts + 1,
			"LastAttemptedAt": now,
		}).
		Where("ID = ?", event.ID).
		Where("Status = ?", event.Status).
		Where("Attempts = ?", event.Attempts),
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire event")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to count rows affected")
	}
	if rows == 0 {
		return false, nil
	}

	event.Status = model.EventStatusInFlight
	event.Attempts++
	event.LastAttemptedAt = now
	return true, nil
}

// UpdateEventDelivery writes the mutable delivery fields of an event. The
// caller must own the event, having acquired it beforehand.
func (sqlStore *SQLStore) UpdateEventDelivery(event *model.Event) error {
	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(eventTable).
		SetMap(map[string]interface{}{
			"Status":           event.Status,
			"Attempts":         event.Attempts,
			"LastAttemptedAt":  event.LastAttemptedAt,
			"NextAttemptAfter": event.NextAttemptAfter,
			"LastError":        event.LastError,
		}).
		Where("ID = ?", event.ID),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update event delivery fields")
	}

	return nil
}

// DeferEvent pushes a not-yet-acquired event's next attempt into the future,
// used for rate-limit deferrals. The status guard keeps a concurrent worker's
// transition intact.
func (sqlStore *SQLStore) DeferEvent(event *model.Event, nextAttemptAfter int64) error {
	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(eventTable).
		Set("NextAttemptAfter", nextAttemptAfter).
		Where("ID = ?", event.ID).
		Where("Status = ?", event.Status),
	)
	if err != nil {
		return errors.Wrap(err, "failed to defer event")
	}

	event.NextAttemptAfter = nextAttemptAfter
	return nil
}
