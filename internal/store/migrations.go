// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"github.com/blang/semver"
)

type migration struct {
	fromVersion   semver.Version
	toVersion     semver.Version
	migrationFunc func(execer) error
}

// migrations defines the set of migrations necessary to advance the database to the latest
// expected version.
//
// Note that the canonical schema is currently obtained by applying all migrations to an empty
// database.
var migrations = []migration{
	{semver.MustParse("0.0.0"), semver.MustParse("0.1.0"), func(e execer) error {
		_, err := e.Exec(`
			CREATE TABLE System (
				Key VARCHAR(64) PRIMARY KEY,
				Value VARCHAR(1024) NULL
			);
		`)
		if err != nil {
			return err
		}

		_, err = e.Exec(`
			CREATE TABLE Subscription (
				ID CHAR(26) PRIMARY KEY,
				URL TEXT NOT NULL,
				Secret TEXT NOT NULL,
				Enabled BOOLEAN NOT NULL,
				EventTypes TEXT NOT NULL,
				SpaceID VARCHAR(64) NOT NULL,
				ProjectIDs TEXT NOT NULL,
				RetryAttempts INTEGER NOT NULL,
				TimeoutMillis BIGINT NOT NULL,
				RateLimit INTEGER NOT NULL,
				RateLimitPeriodMillis BIGINT NOT NULL,
				Headers TEXT NOT NULL,
				CreateAt BIGINT NOT NULL,
				UpdateAt BIGINT NOT NULL,
				DeleteAt BIGINT NOT NULL
			);
		`)
		if err != nil {
			return err
		}

		_, err = e.Exec(`
			CREATE TABLE Event (
				ID CHAR(26) PRIMARY KEY,
				Type VARCHAR(64) NOT NULL,
				Action VARCHAR(16) NOT NULL,
				ObjectID VARCHAR(64) NOT NULL,
				ObjectClass VARCHAR(32) NOT NULL,
				SubscriptionID CHAR(26) NOT NULL,
				Payload BYTEA NOT NULL,
				Status VARCHAR(32) NOT NULL,
				Attempts INTEGER NOT NULL,
				LastAttemptedAt BIGINT NOT NULL,
				NextAttemptAfter BIGINT NOT NULL,
				LastError TEXT NOT NULL,
				CreateAt BIGINT NOT NULL
			);
		`)
		if err != nil {
			return err
		}

		_, err = e.Exec(`
			CREATE INDEX Event_Status_NextAttemptAfter ON Event (Status, NextAttemptAfter);
		`)
		if err != nil {
			return err
		}

		_, err = e.Exec(`
			CREATE TABLE DeliveryAttempt (
				ID CHAR(26) PRIMARY KEY,
				EventID CHAR(26) NOT NULL,
				AttemptNumber INTEGER NOT NULL,
				RequestAt BIGINT NOT NULL,
				HTTPStatus INTEGER NOT NULL,
				ResponseTimeMillis BIGINT NOT NULL,
				Success BOOLEAN NOT NULL,
				Error TEXT NOT NULL,
				ResponseBody TEXT NOT NULL,
				ResponseHeaders TEXT NOT NULL,
				UNIQUE (EventID, AttemptNumber)
			);
		`)
		if err != nil {
			return err
		}

		_, err = e.Exec(`
			CREATE TABLE DeliveryStats (
				SubscriptionID CHAR(26) NOT NULL,
				Period VARCHAR(10) NOT NULL,
				TotalEvents BIGINT NOT NULL,
				DeliveredEvents BIGINT NOT NULL,
				FailedEvents BIGINT NOT NULL,
				TotalResponseTimeMillis BIGINT NOT NULL,
				LastDeliveryAttemptAt BIGINT NOT NULL,
				LastSuccessfulAt BIGINT NOT NULL,
				PRIMARY KEY (SubscriptionID, Period)
			);
		`)
		if err != nil {
			return err
		}

		return nil
	}},
}
