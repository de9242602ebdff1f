// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadEnvelopeToJSON(t *testing.T) {
	envelope := &PayloadEnvelope{
		Event: PayloadEvent{
			ID:          "evt-1",
			Timestamp:   1700000000000,
			Type:        "issue.updated",
			Action:      ActionUpdated,
			ObjectID:    "I-1",
			ObjectClass: ClassIssue,
		},
		Workspace:  "acme",
		ModifiedBy: "user-1",
		Data: PayloadData{
			Action:     ActionUpdated,
			Object:     json.RawMessage(`{"title":"new"}`),
			Operations: map[string]interface{}{"title": "new"},
		},
	}

	body, err := envelope.ToJSON()
	require.NoError(t, err)

	t.Run("top-level key order is fixed", func(t *testing.T) {
		s := string(body)
		order := []string{`"event"`, `"workspace"`, `"modifiedBy"`, `"data"`}
		last := -1
		for _, key := range order {
			idx := strings.Index(s, key)
			require.NotEqual(t, -1, idx, "missing key %s", key)
			assert.Greater(t, idx, last, "key %s out of order", key)
			last = idx
		}
	})

	t.Run("serialization is deterministic", func(t *testing.T) {
		again, err := envelope.ToJSON()
		require.NoError(t, err)
		assert.Equal(t, body, again)
	})

	t.Run("round trips", func(t *testing.T) {
		decoded, err := NewPayloadEnvelopeFromReader(bytes.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, envelope.Event, decoded.Event)
		assert.Equal(t, envelope.Workspace, decoded.Workspace)
		assert.Equal(t, envelope.ModifiedBy, decoded.ModifiedBy)
	})
}

func TestPayloadEnvelopeNullObject(t *testing.T) {
	envelope := &PayloadEnvelope{
		Event: PayloadEvent{
			ID:          "evt-2",
			Type:        "issue.deleted",
			Action:      ActionDeleted,
			ObjectID:    "I-2",
			ObjectClass: ClassIssue,
		},
		Data: PayloadData{Action: ActionDeleted},
	}

	body, err := envelope.ToJSON()
	require.NoError(t, err)

	assert.Contains(t, string(body), `"object":null`)
	assert.NotContains(t, string(body), `"operations"`)
}

func TestEventStatusIsTerminal(t *testing.T) {
	assert.False(t, EventStatusPending.IsTerminal())
	assert.False(t, EventStatusInFlight.IsTerminal())
	assert.False(t, EventStatusFailedRetryable.IsTerminal())
	assert.True(t, EventStatusDelivered.IsTerminal())
	assert.True(t, EventStatusDeadLettered.IsTerminal())
}
