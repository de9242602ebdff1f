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

func TestDeliveryAttempts(t *testing.T) {
	logger := testlib.MakeLogger(t)
	sqlStore := MakeTestSQLStore(t, logger)
	defer CloseConnection(t, sqlStore)

	eventID := model.NewID()
	now := model.GetMillis()

	attempt1 := &model.DeliveryAttempt{
		EventID:            eventID,
		AttemptNumber:      1,
		RequestAt:          now,
		HTTPStatus:         500,
		ResponseTimeMillis: 42,
		Success:            false,
		Error:              "consumer returned 500",
		ResponseBody:       "oops",
		ResponseHeaders:    model.StringMap{"Content-Type": "text/plain"},
	}
	err := sqlStore.CreateDeliveryAttempt(attempt1)
	require.NoError(t, err)
	require.NotEmpty(t, attempt1.ID)

	attempt2 := &model.DeliveryAttempt{
		EventID:            eventID,
		AttemptNumber:      2,
		RequestAt:          now + 1000,
		HTTPStatus:         200,
		ResponseTimeMillis: 17,
		Success:            true,
	}
	err = sqlStore.CreateDeliveryAttempt(attempt2)
	require.NoError(t, err)

	t.Run("ordered by attempt number", func(t *testing.T) {
		attempts, err := sqlStore.GetDeliveryAttempts(eventID)
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, attempt1.ID, attempts[0].ID)
		assert.Equal(t, "consumer returned 500", attempts[0].Error)
		assert.Equal(t, model.StringMap{"Content-Type": "text/plain"}, attempts[0].ResponseHeaders)
		assert.Equal(t, attempt2.ID, attempts[1].ID)
		assert.True(t, attempts[1].Success)
	})

	t.Run("duplicate attempt number rejected", func(t *testing.T) {
		duplicate := &model.DeliveryAttempt{
			EventID:       eventID,
			AttemptNumber: 2,
			RequestAt:     now + 2000,
		}
		err := sqlStore.CreateDeliveryAttempt(duplicate)
		assert.Error(t, err)
	})

	t.Run("no attempts for unknown event", func(t *testing.T) {
		attempts, err := sqlStore.GetDeliveryAttempts(model.NewID())
		require.NoError(t, err)
		assert.Empty(t, attempts)
	})
}
