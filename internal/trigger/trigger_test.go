// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package trigger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/webhook-delivery/internal/store"
	"github.com/docuflow/webhook-delivery/internal/testlib"
	"github.com/docuflow/webhook-delivery/model"
)

type fakeControl struct {
	workspaceID   string
	workspaceName string
	objects       map[string]json.RawMessage
	removed       map[string]json.RawMessage
	findErr       error
}

func (c *fakeControl) WorkspaceID() string   { return c.workspaceID }
func (c *fakeControl) WorkspaceName() string { return c.workspaceName }

func (c *fakeControl) FindObject(class model.DocumentClass, id string) (json.RawMessage, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.objects[id], nil
}

func (c *fakeControl) Removed(class model.DocumentClass, id string) json.RawMessage {
	return c.removed[id]
}

type triggerHarness struct {
	translator *Translator
	sqlStore   *store.SQLStore
	control    *fakeControl
}

func makeTranslator(t *testing.T) *triggerHarness {
	logger := testlib.MakeLogger(t)
	sqlStore := store.MakeTestSQLStore(t, logger)
	t.Cleanup(func() {
		store.CloseConnection(t, sqlStore)
	})

	control := &fakeControl{
		workspaceID:   "W-1",
		workspaceName: "acme",
		objects:       map[string]json.RawMessage{},
		removed:       map[string]json.RawMessage{},
	}

	return &triggerHarness{
		translator: New(sqlStore, nil, clock.WallClock, logger),
		sqlStore:   sqlStore,
		control:    control,
	}
}

func (h *triggerHarness) createSubscription(t *testing.T, mutate func(*model.Subscription)) *model.Subscription {
	subscription := &model.Subscription{
		URL:     "https://example.com/hook",
		Enabled: true,
	}
	if mutate != nil {
		mutate(subscription)
	}
	require.NoError(t, h.sqlStore.CreateSubscription(subscription))

	return subscription
}

func issueCreate(objectID, spaceID string) *model.Transaction {
	return &model.Transaction{
		Kind:        model.TransactionCreate,
		ObjectClass: model.ClassIssue,
		ObjectID:    objectID,
		ModifiedBy:  "U-1",
		SpaceID:     spaceID,
		Attributes:  json.RawMessage(`{"title":"hello"}`),
	}
}

func TestTranslateIssueCreate(t *testing.T) {
	harness := makeTranslator(t)
	subscription := harness.createSubscription(t, func(s *model.Subscription) {
		s.EventTypes = model.StringList{"issue.created"}
	})

	events, err := harness.translator.Translate([]*model.Transaction{issueCreate("I-1", "P-1")}, harness.control)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, model.EventType("issue.created"), event.Type)
	assert.Equal(t, model.ActionCreated, event.Action)
	assert.Equal(t, "I-1", event.ObjectID)
	assert.Equal(t, subscription.ID, event.SubscriptionID)
	assert.Equal(t, model.EventStatusPending, event.Status)
	assert.Equal(t, 0, event.Attempts)
	assert.True(t, event.NextAttemptAfter > 0)

	envelope, err := model.NewPayloadEnvelopeFromReader(bytes.NewReader(event.Payload))
	require.NoError(t, err)
	assert.Equal(t, event.ID, envelope.Event.ID)
	assert.Equal(t, model.EventType("issue.created"), envelope.Event.Type)
	assert.Equal(t, "I-1", envelope.Event.ObjectID)
	assert.Equal(t, "acme", envelope.Workspace)
	assert.Equal(t, "U-1", envelope.ModifiedBy)
	assert.JSONEq(t, `{"title":"hello"}`, string(envelope.Data.Object))
	assert.Nil(t, envelope.Data.Operations)
}

func TestTranslateFansOutPerSubscription(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, nil)
	harness.createSubscription(t, nil)

	events, err := harness.translator.Translate([]*model.Transaction{issueCreate("I-1", "P-1")}, harness.control)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].SubscriptionID, events[1].SubscriptionID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestTranslateSkipsUnobservedClasses(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, nil)

	events, err := harness.translator.Translate([]*model.Transaction{{
		Kind:        model.TransactionCreate,
		ObjectClass: "attachment",
		ObjectID:    "A-1",
		SpaceID:     "P-1",
	}}, harness.control)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTranslateEventTypeFilter(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, func(s *model.Subscription) {
		s.EventTypes = model.StringList{"project.created"}
	})

	events, err := harness.translator.Translate([]*model.Transaction{issueCreate("I-1", "P-1")}, harness.control)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTranslateProjectScopeFilter(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, func(s *model.Subscription) {
		s.ProjectIDs = model.StringList{"P-1"}
	})

	t.Run("issue outside the project produces no event", func(t *testing.T) {
		events, err := harness.translator.Translate([]*model.Transaction{issueCreate("I-1", "P-2")}, harness.control)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("issue inside the project produces an event", func(t *testing.T) {
		events, err := harness.translator.Translate([]*model.Transaction{issueCreate("I-2", "P-1")}, harness.control)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("project matches on its own id", func(t *testing.T) {
		events, err := harness.translator.Translate([]*model.Transaction{{
			Kind:        model.TransactionCreate,
			ObjectClass: model.ClassProject,
			ObjectID:    "P-1",
			SpaceID:     "S-1",
			Attributes:  json.RawMessage(`{}`),
		}}, harness.control)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("chat messages are outside the tracker family", func(t *testing.T) {
		events, err := harness.translator.Translate([]*model.Transaction{{
			Kind:        model.TransactionCreate,
			ObjectClass: model.ClassChatMessage,
			ObjectID:    "M-1",
			SpaceID:     "C-1",
			Attributes:  json.RawMessage(`{}`),
		}}, harness.control)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestTranslateSpaceScopeFilter(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, func(s *model.Subscription) {
		s.SpaceID = "P-1"
	})

	events, err := harness.translator.Translate([]*model.Transaction{issueCreate("I-1", "P-2")}, harness.control)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = harness.translator.Translate([]*model.Transaction{issueCreate("I-2", "P-1")}, harness.control)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestTranslateUpdateCarriesOperationsAndSnapshot(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, nil)
	harness.control.objects["I-1"] = json.RawMessage(`{"title":"renamed"}`)

	events, err := harness.translator.Translate([]*model.Transaction{{
		Kind:        model.TransactionUpdate,
		ObjectClass: model.ClassIssue,
		ObjectID:    "I-1",
		ModifiedBy:  "U-1",
		SpaceID:     "P-1",
		Operations:  map[string]interface{}{"title": "renamed"},
	}}, harness.control)
	require.NoError(t, err)
	require.Len(t, events, 1)

	envelope, err := model.NewPayloadEnvelopeFromReader(bytes.NewReader(events[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdated, envelope.Data.Action)
	assert.JSONEq(t, `{"title":"renamed"}`, string(envelope.Data.Object))
	assert.Equal(t, map[string]interface{}{"title": "renamed"}, envelope.Data.Operations)
}

func TestTranslateDeleteWithoutRemovedState(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, nil)

	events, err := harness.translator.Translate([]*model.Transaction{{
		Kind:        model.TransactionDelete,
		ObjectClass: model.ClassIssue,
		ObjectID:    "I-1",
		SpaceID:     "P-1",
	}}, harness.control)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Contains(t, string(events[0].Payload), `"object":null`)
}

func TestTranslateResolverFailureSkipsSubscription(t *testing.T) {
	harness := makeTranslator(t)
	harness.createSubscription(t, nil)
	harness.control.findErr = errors.New("store unavailable")

	events, err := harness.translator.Translate([]*model.Transaction{{
		Kind:        model.TransactionUpdate,
		ObjectClass: model.ClassIssue,
		ObjectID:    "I-1",
		SpaceID:     "P-1",
		Operations:  map[string]interface{}{"title": "renamed"},
	}}, harness.control)
	require.NoError(t, err)
	assert.Empty(t, events)
}
