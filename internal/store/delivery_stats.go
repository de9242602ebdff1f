// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/docuflow/webhook-delivery/model"
)

const deliveryStatsTable = "DeliveryStats"

var deliveryStatsSelect = sq.Select(
	"SubscriptionID",
	"Period",
	"TotalEvents",
	"DeliveredEvents",
	"FailedEvents",
	"TotalResponseTimeMillis",
	"LastDeliveryAttemptAt",
	"LastSuccessfulAt",
).From(deliveryStatsTable)

// UpsertDeliveryStats applies a delta to the rolling counters of a
// subscription for the attempt's period, creating the row on first write.
func (sqlStore *SQLStore) UpsertDeliveryStats(subscriptionID, period string, delta *model.StatsDelta) error {
	tx, err := sqlStore.beginTransaction(sqlStore.db)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.RollbackUnlessCommitted()

	delivered := int64(0)
	failed := int64(1)
	lastSuccessful := sq.Expr("LastSuccessfulAt")
	if delta.Delivered {
		delivered, failed = 1, 0
		lastSuccessful = sq.Expr("?", delta.AttemptAt)
	}

	result, err := sqlStore.execBuilder(tx, sq.
		Update(deliveryStatsTable).
		Set("TotalEvents", sq.Expr("TotalEvents + 1")).
		Set("DeliveredEvents", sq.Expr("DeliveredEvents + ?", delivered)).
		Set("FailedEvents", sq.Expr("FailedEvents + ?", failed)).
		Set("TotalResponseTimeMillis", sq.Expr("TotalResponseTimeMillis + ?", delta.ResponseTimeMillis)).
		Set("LastDeliveryAttemptAt", delta.AttemptAt).
		Set("LastSuccessfulAt", lastSuccessful).
		Where("SubscriptionID = ?", subscriptionID).
		Where("Period = ?", period),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update delivery stats")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to count rows affected")
	}

	if rows == 0 {
		lastSuccessfulAt := int64(0)
		if delta.Delivered {
			lastSuccessfulAt = delta.AttemptAt
		}
		_, err = sqlStore.execBuilder(tx, sq.
			Insert(deliveryStatsTable).
			SetMap(map[string]interface{}{
				"SubscriptionID":          subscriptionID,
				"Period":                  period,
				"TotalEvents":             1,
				"DeliveredEvents":         delivered,
				"FailedEvents":            failed,
				"TotalResponseTimeMillis": delta.ResponseTimeMillis,
				"LastDeliveryAttemptAt":   delta.AttemptAt,
				"LastSuccessfulAt":        lastSuccessfulAt,
			}),
		)
		if err != nil {
			return errors.Wrap(err, "failed to insert delivery stats")
		}
	}

	err = tx.Commit()
	if err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// GetDeliveryStats fetches all stats periods recorded for a subscription,
// newest period first.
func (sqlStore *SQLStore) GetDeliveryStats(subscriptionID string) ([]*model.DeliveryStats, error) {
	stats := []*model.DeliveryStats{}
	err := sqlStore.selectBuilder(sqlStore.db, &stats,
		deliveryStatsSelect.
			Where("SubscriptionID = ?", subscriptionID).
			OrderBy("Period DESC"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query for delivery stats")
	}

	return stats, nil
}
