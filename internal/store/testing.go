// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"fmt"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/webhook-delivery/model"
)

// MakeTestSQLStore creates a migrated, sqlite-backed SQLStore for use with
// unit tests.
func MakeTestSQLStore(tb testing.TB, logger log.FieldLogger) *SQLStore {
	dsn := fmt.Sprintf("sqlite3://file:%s.db?mode=memory&cache=shared", model.NewID())

	sqlStore, err := New(dsn, logger)
	require.NoError(tb, err)

	// With mode=memory, restrict to a single connection, otherwise multiple
	// goroutines may not see consistent views.
	sqlStore.db.SetMaxOpenConns(1)

	err = sqlStore.Migrate()
	require.NoError(tb, err)

	return sqlStore
}

// CloseConnection closes the underlying database connection.
func CloseConnection(tb testing.TB, sqlStore *SQLStore) {
	require.NoError(tb, sqlStore.db.Close())
}
