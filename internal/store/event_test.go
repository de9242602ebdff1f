// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/webhook-delivery/internal/testlib"
	"github.com/docuflow/webhook-delivery/model"
)

func makePendingEvent(subscriptionID, objectID string, nextAttemptAfter int64) *model.Event {
	return &model.Event{
		Type:             "issue.created",
		Action:           model.ActionCreated,
		ObjectID:         objectID,
		ObjectClass:      model.ClassIssue,
		SubscriptionID:   subscriptionID,
		Payload:          []byte(`{"event":{}}`),
		Status:           model.EventStatusPending,
		NextAttemptAfter: nextAttemptAfter,
	}
}

func TestEvents(t *testing.T) {
	logger := testlib.MakeLogger(t)
	sqlStore := MakeTestSQLStore(t, logger)
	defer CloseConnection(t, sqlStore)

	subscriptionID := model.NewID()
	now := model.GetMillis()

	event1 := makePendingEvent(subscriptionID, "I-1", now-100)
	event2 := makePendingEvent(subscriptionID, "I-2", now-50)
	future := makePendingEvent(subscriptionID, "I-3", now+60000)

	err := sqlStore.CreateEvents([]*model.Event{event1, event2, future})
	require.NoError(t, err)
	require.NotEmpty(t, event1.ID)

	t.Run("get event", func(t *testing.T) {
		fetched, err := sqlStore.GetEvent(event1.ID)
		require.NoError(t, err)
		require.NotNil(t, fetched)
		assert.Equal(t, event1.Payload, fetched.Payload)
		assert.Equal(t, model.EventStatusPending, fetched.Status)
	})

	t.Run("due events exclude future, ordered by due time", func(t *testing.T) {
		due, err := sqlStore.GetDueEvents(now, 100)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, event1.ID, due[0].ID)
		assert.Equal(t, event2.ID, due[1].ID)
	})

	t.Run("due events respect limit", func(t *testing.T) {
		due, err := sqlStore.GetDueEvents(now, 1)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, event1.ID, due[0].ID)
	})

	t.Run("acquire transitions to in-flight", func(t *testing.T) {
		acquired, err := sqlStore.AcquireEvent(event1, now)
		require.NoError(t, err)
		require.True(t, acquired)
		assert.Equal(t, model.EventStatusInFlight, event1.Status)
		assert.Equal(t, 1, event1.Attempts)

		fetched, err := sqlStore.GetEvent(event1.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EventStatusInFlight, fetched.Status)
		assert.Equal(t, 1, fetched.Attempts)
	})

	t.Run("acquire conflicts on stale snapshot", func(t *testing.T) {
		stale := makePendingEvent(subscriptionID, "I-1", 0)
		stale.ID = event1.ID

		acquired, err := sqlStore.AcquireEvent(stale, now)
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("in-flight events are not due", func(t *testing.T) {
		due, err := sqlStore.GetDueEvents(now, 100)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, event2.ID, due[0].ID)
	})

	t.Run("update delivery fields", func(t *testing.T) {
		event1.Status = model.EventStatusFailedRetryable
		event1.NextAttemptAfter = now + 1000
		event1.LastError = "consumer returned 500"
		err := sqlStore.UpdateEventDelivery(event1)
		require.NoError(t, err)

		fetched, err := sqlStore.GetEvent(event1.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EventStatusFailedRetryable, fetched.Status)
		assert.Equal(t, now+1000, fetched.NextAttemptAfter)
		assert.Equal(t, "consumer returned 500", fetched.LastError)
	})

	t.Run("retryable event becomes due again", func(t *testing.T) {
		due, err := sqlStore.GetDueEvents(now+1000, 100)
		require.NoError(t, err)
		assert.Len(t, due, 2)
	})

	t.Run("defer keeps status and pushes due time", func(t *testing.T) {
		err := sqlStore.DeferEvent(event2, now+5000)
		require.NoError(t, err)

		due, err := sqlStore.GetDueEvents(now+1000, 100)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, event1.ID, due[0].ID)
	})

	t.Run("filter events by status", func(t *testing.T) {
		events, err := sqlStore.GetEvents(&model.EventsFilter{
			Paging: model.AllPagesWithDeleted(),
			Status: model.EventStatusPending,
		})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}
