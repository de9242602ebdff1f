// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// EventStatus represents the delivery state of an Event.
type EventStatus string

const (
	// EventStatusPending indicates that delivery was not yet tried.
	EventStatusPending EventStatus = "pending"
	// EventStatusInFlight indicates that a worker owns the event for the
	// duration of one attempt.
	EventStatusInFlight EventStatus = "in-flight"
	// EventStatusDelivered indicates that delivery succeeded.
	EventStatusDelivered EventStatus = "delivered"
	// EventStatusFailedRetryable indicates that the last attempt failed and
	// another will follow.
	EventStatusFailedRetryable EventStatus = "failed-retryable"
	// EventStatusDeadLettered indicates that retries are exhausted or the
	// failure is permanent; the event is never dispatched again.
	EventStatusDeadLettered EventStatus = "dead-lettered"
)

// IsTerminal reports whether the status permits no further dispatch.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusDelivered || s == EventStatusDeadLettered
}

// Event is one pending or completed notification directed at exactly one
// Subscription.
type Event struct {
	ID               string
	Type             EventType
	Action           Action
	ObjectID         string
	ObjectClass      DocumentClass
	SubscriptionID   string
	Payload          []byte
	Status           EventStatus
	Attempts         int
	LastAttemptedAt  int64
	NextAttemptAfter int64
	LastError        string
	CreateAt         int64
}

// EventsFilter is a filter for event queries.
type EventsFilter struct {
	Paging
	SubscriptionID string
	Status         EventStatus
}

// PayloadEvent is the "event" section of the canonical envelope.
type PayloadEvent struct {
	ID          string        `json:"id"`
	Timestamp   int64         `json:"timestamp"`
	Type        EventType     `json:"type"`
	Action      Action        `json:"action"`
	ObjectID    string        `json:"objectId"`
	ObjectClass DocumentClass `json:"objectClass"`
}

// PayloadData is the "data" section of the canonical envelope.
type PayloadData struct {
	Action Action `json:"action"`
	// Object carries the document snapshot, or null when the removed state is
	// not available.
	Object json.RawMessage `json:"object"`
	// Operations carries the set of field changes; present only on updates.
	Operations map[string]interface{} `json:"operations,omitempty"`
}

// PayloadEnvelope is the canonical JSON body delivered to webhook receivers.
//
// The top-level key order is part of the wire contract: signatures are
// computed over the exact bytes, and encoding/json emits struct fields in
// declaration order.
type PayloadEnvelope struct {
	Event      PayloadEvent `json:"event"`
	Workspace  string       `json:"workspace"`
	ModifiedBy string       `json:"modifiedBy"`
	Data       PayloadData  `json:"data"`
}

// ToJSON serializes the envelope to its canonical UTF-8 bytes.
func (p *PayloadEnvelope) ToJSON() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload envelope")
	}
	return b, nil
}

// NewPayloadEnvelopeFromReader decodes a json-encoded envelope from the given
// io.Reader.
func NewPayloadEnvelopeFromReader(reader io.Reader) (*PayloadEnvelope, error) {
	var payload PayloadEnvelope
	err := json.NewDecoder(reader).Decode(&payload)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode payload envelope")
	}

	return &payload, nil
}

// NewEventFromReader decodes a json-encoded event from the given io.Reader.
func NewEventFromReader(reader io.Reader) (*Event, error) {
	var event Event
	err := json.NewDecoder(reader).Decode(&event)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode Event")
	}

	return &event, nil
}

// NewEventsFromReader decodes a json-encoded list of events from the given
// io.Reader.
func NewEventsFromReader(reader io.Reader) ([]*Event, error) {
	events := []*Event{}
	err := json.NewDecoder(reader).Decode(&events)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode Events")
	}

	return events, nil
}
