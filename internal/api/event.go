// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuflow/webhook-delivery/model"
)

// initEvent registers event inspection endpoints on the given router.
func initEvent(apiRouter *mux.Router, context *Context) {
	addContext := func(handler contextHandlerFunc) *contextHandler {
		return newContextHandler(context, handler)
	}

	apiRouter.Handle("/events", addContext(handleListEvents)).Methods("GET")

	eventRouter := apiRouter.PathPrefix("/event/{event:[A-Za-z0-9]{26}}").Subrouter()
	eventRouter.Handle("", addContext(handleGetEvent)).Methods("GET")
	eventRouter.Handle("/attempts", addContext(handleGetEventAttempts)).Methods("GET")
}

// handleListEvents responds to GET /api/events, returning the specified page
// of events, optionally filtered by status and subscription. Dead-lettered
// events are inspected this way.
func handleListEvents(c *Context, w http.ResponseWriter, r *http.Request) {
	paging, err := parsePaging(r.URL)
	if err != nil {
		c.Logger.WithError(err).Error("failed to parse paging parameters")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	events, err := c.Store.GetEvents(&model.EventsFilter{
		Paging:         paging,
		SubscriptionID: r.URL.Query().Get("subscription"),
		Status:         model.EventStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		c.Logger.WithError(err).Error("failed to query events")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	outputJSON(c, w, events)
}

// handleGetEvent responds to GET /api/event/{event}.
func handleGetEvent(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	eventID := vars["event"]

	event, err := c.Store.GetEvent(eventID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query event")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if event == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	outputJSON(c, w, event)
}

// handleGetEventAttempts responds to GET /api/event/{event}/attempts,
// returning the event's audit trail ordered by attempt number.
func handleGetEventAttempts(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	eventID := vars["event"]

	event, err := c.Store.GetEvent(eventID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query event")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if event == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	attempts, err := c.Store.GetDeliveryAttempts(eventID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query delivery attempts")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	outputJSON(c, w, attempts)
}
