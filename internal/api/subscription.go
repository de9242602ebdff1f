// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuflow/webhook-delivery/model"
)

// initSubscription registers subscription endpoints on the given router.
func initSubscription(apiRouter *mux.Router, context *Context) {
	addContext := func(handler contextHandlerFunc) *contextHandler {
		return newContextHandler(context, handler)
	}

	apiRouter.Handle("/subscriptions", addContext(handleListSubscriptions)).Methods("GET")

	subscriptionRouter := apiRouter.PathPrefix("/subscription/{subscription:[A-Za-z0-9]{26}}").Subrouter()
	subscriptionRouter.Handle("", addContext(handleGetSubscription)).Methods("GET")
	subscriptionRouter.Handle("/stats", addContext(handleGetSubscriptionStats)).Methods("GET")
}

// handleListSubscriptions responds to GET /api/subscriptions, returning the
// specified page of subscriptions.
func handleListSubscriptions(c *Context, w http.ResponseWriter, r *http.Request) {
	paging, err := parsePaging(r.URL)
	if err != nil {
		c.Logger.WithError(err).Error("failed to parse paging parameters")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	enabledOnly, err := parseBool(r.URL, "enabled_only", false)
	if err != nil {
		c.Logger.WithError(err).Error("failed to parse enabled_only")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	subscriptions, err := c.Store.GetSubscriptions(&model.SubscriptionsFilter{
		Paging:      paging,
		EventType:   model.EventType(r.URL.Query().Get("event_type")),
		EnabledOnly: enabledOnly,
	})
	if err != nil {
		c.Logger.WithError(err).Error("failed to query subscriptions")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	outputJSON(c, w, subscriptions)
}

// handleGetSubscription responds to GET /api/subscription/{subscription}.
func handleGetSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	subscriptionID := vars["subscription"]

	subscription, err := c.Store.GetSubscription(subscriptionID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query subscription")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if subscription == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	outputJSON(c, w, subscription)
}

// handleGetSubscriptionStats responds to GET /api/subscription/{subscription}/stats,
// returning the per-period delivery counters, newest period first.
func handleGetSubscriptionStats(c *Context, w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	subscriptionID := vars["subscription"]

	subscription, err := c.Store.GetSubscription(subscriptionID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query subscription")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if subscription == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	stats, err := c.Store.GetDeliveryStats(subscriptionID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query delivery stats")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	outputJSON(c, w, stats)
}
