// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/docuflow/webhook-delivery/model"
)

const deliveryAttemptTable = "DeliveryAttempt"

var deliveryAttemptSelect = sq.Select(
	"ID",
	"EventID",
	"AttemptNumber",
	"RequestAt",
	"HTTPStatus",
	"ResponseTimeMillis",
	"Success",
	"Error",
	"ResponseBody",
	"ResponseHeaders",
).From(deliveryAttemptTable)

// CreateDeliveryAttempt appends an attempt audit record, assigning it a unique ID.
func (sqlStore *SQLStore) CreateDeliveryAttempt(attempt *model.DeliveryAttempt) error {
	attempt.ID = model.NewID()

	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Insert(deliveryAttemptTable).
		SetMap(map[string]interface{}{
			"ID":                 attempt.ID,
			"EventID":            attempt.EventID,
			"AttemptNumber":      attempt.AttemptNumber,
			"RequestAt":          attempt.RequestAt,
			"HTTPStatus":         attempt.HTTPStatus,
			"ResponseTimeMillis": attempt.ResponseTimeMillis,
			"Success":            attempt.Success,
			"Error":              attempt.Error,
			"ResponseBody":       attempt.ResponseBody,
			"ResponseHeaders":    attempt.ResponseHeaders,
		}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create delivery attempt")
	}

	return nil
}

// GetDeliveryAttempts fetches the attempts of an event ordered by attempt number.
func (sqlStore *SQLStore) GetDeliveryAttempts(eventID string) ([]*model.DeliveryAttempt, error) {
	attempts := []*model.DeliveryAttempt{}
	err := sqlStore.selectBuilder(sqlStore.db, &attempts,
		deliveryAttemptSelect.
			Where("EventID = ?", eventID).
			OrderBy("AttemptNumber ASC"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query for delivery attempts")
	}

	return attempts, nil
}
