// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// tx wraps sqlx.Tx, tracking whether the transaction was committed so a
// deferred rollback can be a no-op after commit.
type tx struct {
	*sqlx.Tx
	committed bool
	logger    logrus.FieldLogger
}

func (sqlStore *SQLStore) beginTransaction(db *sqlx.DB) (*tx, error) {
	sqlxTx, err := db.Beginx()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	return &tx{
		Tx:     sqlxTx,
		logger: sqlStore.logger,
	}, nil
}

func (t *tx) Commit() error {
	err := t.Tx.Commit()
	if err != nil {
		return err
	}

	t.committed = true
	return nil
}

// RollbackUnlessCommitted rolls the transaction back unless it was already
// committed, logging any unexpected rollback failure.
func (t *tx) RollbackUnlessCommitted() {
	if t.committed {
		return
	}

	err := t.Tx.Rollback()
	if err != nil {
		t.logger.WithError(err).Error("failed to roll back transaction")
	}
}
