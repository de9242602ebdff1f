// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

// ResponseBodyLimit caps how much of a receiver's response body is retained
// on a DeliveryAttempt.
const ResponseBodyLimit = 8 * 1024

// DeliveryAttempt is an append-only audit record of a single HTTP try for an
// Event.
type DeliveryAttempt struct {
	ID            string
	EventID       string
	AttemptNumber int
	RequestAt     int64
	// HTTPStatus is zero when the request never produced a response.
	HTTPStatus         int
	ResponseTimeMillis int64
	Success            bool
	Error              string
	ResponseBody       string
	// ResponseHeaders are captured for audit but hidden from normal views.
	ResponseHeaders StringMap `json:"-"`
}

// TruncateResponseBody bounds a response body to ResponseBodyLimit bytes.
func TruncateResponseBody(body []byte) string {
	if len(body) > ResponseBodyLimit {
		body = body[:ResponseBodyLimit]
	}
	return string(body)
}
