// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"encoding/json"
	"fmt"
)

// DocumentClass identifies a class of documents observed for changes.
//
// The set of observed classes is closed; adding a class is a code change, not
// a configuration change.
type DocumentClass string

const (
	// ClassIssue is the tracker issue document class.
	ClassIssue DocumentClass = "issue"
	// ClassProject is the tracker project document class.
	ClassProject DocumentClass = "project"
	// ClassComponent is the tracker component document class.
	ClassComponent DocumentClass = "component"
	// ClassMilestone is the tracker milestone document class.
	ClassMilestone DocumentClass = "milestone"
	// ClassChatMessage is the chat message document class.
	ClassChatMessage DocumentClass = "chatmessage"
)

// observedClasses is the closed set of classes that produce events.
var observedClasses = map[DocumentClass]bool{
	ClassIssue:       true,
	ClassProject:     true,
	ClassComponent:   true,
	ClassMilestone:   true,
	ClassChatMessage: true,
}

// IsObserved reports whether the class belongs to the observed-class set.
func (c DocumentClass) IsObserved() bool {
	return observedClasses[c]
}

// IsTrackerFamily reports whether documents of this class live inside a
// tracker project. For these classes the owning project is resolvable from
// the document's space.
func (c DocumentClass) IsTrackerFamily() bool {
	switch c {
	case ClassIssue, ClassProject, ClassComponent, ClassMilestone:
		return true
	}
	return false
}

// Action is the kind of change applied to a document.
type Action string

const (
	// ActionCreated indicates the document was created.
	ActionCreated Action = "created"
	// ActionUpdated indicates the document was updated.
	ActionUpdated Action = "updated"
	// ActionDeleted indicates the document was removed.
	ActionDeleted Action = "deleted"
)

// EventType is a typed string of the form "<class>.<action>", e.g. "issue.created".
type EventType string

// EventTypeFor composes the event type for a class and action.
func EventTypeFor(class DocumentClass, action Action) EventType {
	return EventType(fmt.Sprintf("%s.%s", class, action))
}

// TransactionKind is the kind of a document-change transaction.
type TransactionKind string

const (
	// TransactionCreate represents a document creation.
	TransactionCreate TransactionKind = "create"
	// TransactionUpdate represents a document update.
	TransactionUpdate TransactionKind = "update"
	// TransactionDelete represents a document removal.
	TransactionDelete TransactionKind = "delete"
)

// Transaction is one document mutation as handed over by the host platform.
type Transaction struct {
	Kind        TransactionKind
	ObjectClass DocumentClass
	ObjectID    string
	ModifiedBy  string
	SpaceID     string
	// Attributes holds the created document for create transactions.
	Attributes json.RawMessage
	// Operations holds the set of field changes for update transactions.
	Operations map[string]interface{}
}

// Action classifies the transaction, returning false when no event type applies.
func (t *Transaction) Action() (Action, bool) {
	switch t.Kind {
	case TransactionCreate:
		return ActionCreated, true
	case TransactionUpdate:
		return ActionUpdated, true
	case TransactionDelete:
		return ActionDeleted, true
	}
	return "", false
}
