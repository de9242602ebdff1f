// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"github.com/blang/semver"
	"github.com/pkg/errors"
)

// LatestVersion returns the version to which the last migration migrates.
func LatestVersion() semver.Version {
	return migrations[len(migrations)-1].toVersion
}

// Migrate advances the schema of the configured database to the latest
// version, applying each pending migration in its own transaction.
func (sqlStore *SQLStore) Migrate() error {
	var currentVersion semver.Version
	systemTableExists, err := sqlStore.tableExists("System")
	if err != nil {
		return errors.Wrap(err, "failed to check if system table exists")
	}
	if systemTableExists {
		currentVersion, err = sqlStore.getCurrentVersion(sqlStore.db)
		if err != nil {
			return err
		}
	}

	sqlStore.logger.Infof("Schema version is %s, latest version is %s", currentVersion, LatestVersion())

	applied := 0
	for _, migration := range migrations {
		if !currentVersion.EQ(migration.fromVersion) {
			continue
		}

		err = sqlStore.applyMigration(migration)
		if err != nil {
			return err
		}

		currentVersion = migration.toVersion
		applied++
	}

	if applied == 1 {
		sqlStore.logger.Info("Applied 1 migration")
	} else {
		sqlStore.logger.Infof("Applied %d migrations", applied)
	}

	return nil
}

// applyMigration runs a single migration and records the resulting version,
// atomically.
func (sqlStore *SQLStore) applyMigration(migration migration) error {
	sqlStore.logger.Infof("Migrating schema from %s to %s", migration.fromVersion, migration.toVersion)

	tx, err := sqlStore.db.Beginx()
	if err != nil {
		return errors.Wrapf(err, "failed to begin applying target version %s", migration.toVersion)
	}
	defer tx.Rollback()

	err = migration.migrationFunc(tx)
	if err != nil {
		return errors.Wrapf(err, "failed to migrate to target version %s", migration.toVersion)
	}

	err = sqlStore.setCurrentVersion(tx, migration.toVersion.String())
	if err != nil {
		return errors.Wrap(err, "failed to record target version")
	}

	err = tx.Commit()
	if err != nil {
		return errors.Wrapf(err, "failed to commit target version %s", migration.toVersion)
	}

	return nil
}
