// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import "time"

// DeliveryStats holds rolling per-subscription delivery counters for one
// period. Stats are best-effort; their loss is not a correctness issue.
type DeliveryStats struct {
	SubscriptionID          string
	Period                  string
	TotalEvents             int64
	DeliveredEvents         int64
	FailedEvents            int64
	TotalResponseTimeMillis int64
	LastDeliveryAttemptAt   int64
	LastSuccessfulAt        int64
}

// AverageResponseTimeMillis returns the mean response time over the period.
func (s *DeliveryStats) AverageResponseTimeMillis() int64 {
	if s.TotalEvents == 0 {
		return 0
	}
	return s.TotalResponseTimeMillis / s.TotalEvents
}

// SuccessRate returns the delivered fraction over the period, in [0, 1].
func (s *DeliveryStats) SuccessRate() float64 {
	if s.TotalEvents == 0 {
		return 0
	}
	return float64(s.DeliveredEvents) / float64(s.TotalEvents)
}

// StatsDelta is the increment applied to DeliveryStats after one attempt.
type StatsDelta struct {
	Delivered          bool
	ResponseTimeMillis int64
	AttemptAt          int64
}

// StatsPeriodForMillis maps a unix-millis timestamp to its stats period, a
// UTC day.
func StatsPeriodForMillis(millis int64) string {
	return TimeFromMillis(millis).UTC().Format(time.DateOnly)
}
