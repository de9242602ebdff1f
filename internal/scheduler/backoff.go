// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// delayForAttempt computes the jittered exponential delay to wait after the
// given attempt number failed: base doubles per attempt, is capped at max,
// and carries a ±10% jitter.
func delayForAttempt(attempt int, base, max time.Duration) time.Duration {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = base
	exponential.RandomizationFactor = 0.1
	exponential.Multiplier = 2
	exponential.MaxInterval = max
	exponential.MaxElapsedTime = 0
	exponential.Reset()

	delay := exponential.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = exponential.NextBackOff()
	}

	return delay
}
