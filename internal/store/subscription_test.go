// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/webhook-delivery/internal/testlib"
	"github.com/docuflow/webhook-delivery/model"
)

func TestSubscriptions(t *testing.T) {
	logger := testlib.MakeLogger(t)
	sqlStore := MakeTestSQLStore(t, logger)
	defer CloseConnection(t, sqlStore)

	subscription1 := &model.Subscription{
		URL:        "https://example.com/hook1",
		Secret:     "s1",
		Enabled:    true,
		EventTypes: model.StringList{"issue.created"},
		Headers:    model.StringMap{"X-Env": "test"},
	}
	err := sqlStore.CreateSubscription(subscription1)
	require.NoError(t, err)
	require.NotEmpty(t, subscription1.ID)
	assert.Equal(t, model.DefaultRetryAttempts, subscription1.RetryAttempts)

	time.Sleep(1 * time.Millisecond)

	subscription2 := &model.Subscription{
		URL:     "https://example.com/hook2",
		Enabled: false,
	}
	err = sqlStore.CreateSubscription(subscription2)
	require.NoError(t, err)

	t.Run("get subscription", func(t *testing.T) {
		fetched, err := sqlStore.GetSubscription(subscription1.ID)
		require.NoError(t, err)
		require.NotNil(t, fetched)
		assert.Equal(t, subscription1.URL, fetched.URL)
		assert.Equal(t, subscription1.EventTypes, fetched.EventTypes)
		assert.Equal(t, subscription1.Headers, fetched.Headers)
	})

	t.Run("get unknown subscription", func(t *testing.T) {
		fetched, err := sqlStore.GetSubscription(model.NewID())
		require.NoError(t, err)
		assert.Nil(t, fetched)
	})

	t.Run("reject invalid subscription", func(t *testing.T) {
		err := sqlStore.CreateSubscription(&model.Subscription{URL: "not a url"})
		assert.Error(t, err)
	})

	t.Run("enabled subscriptions only", func(t *testing.T) {
		enabled, err := sqlStore.GetEnabledSubscriptions()
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, subscription1.ID, enabled[0].ID)
	})

	t.Run("enabled ordered by modification, newest first", func(t *testing.T) {
		subscription2.Enabled = true
		err := sqlStore.UpdateSubscription(subscription2)
		require.NoError(t, err)

		enabled, err := sqlStore.GetEnabledSubscriptions()
		require.NoError(t, err)
		require.Len(t, enabled, 2)
		assert.Equal(t, subscription2.ID, enabled[0].ID)
	})

	t.Run("filter by event type", func(t *testing.T) {
		subscriptions, err := sqlStore.GetSubscriptions(&model.SubscriptionsFilter{
			Paging:    model.AllPagesNotDeleted(),
			EventType: "issue.created",
		})
		require.NoError(t, err)
		// subscription2 has no event-type filter and matches everything.
		assert.Len(t, subscriptions, 2)

		subscriptions, err = sqlStore.GetSubscriptions(&model.SubscriptionsFilter{
			Paging:    model.AllPagesNotDeleted(),
			EventType: "project.deleted",
		})
		require.NoError(t, err)
		require.Len(t, subscriptions, 1)
		assert.Equal(t, subscription2.ID, subscriptions[0].ID)
	})

	t.Run("delete subscription", func(t *testing.T) {
		err := sqlStore.DeleteSubscription(subscription1.ID)
		require.NoError(t, err)

		fetched, err := sqlStore.GetSubscription(subscription1.ID)
		require.NoError(t, err)
		require.NotNil(t, fetched)
		assert.True(t, fetched.IsDeleted())

		enabled, err := sqlStore.GetEnabledSubscriptions()
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, subscription2.ID, enabled[0].ID)
	})
}
