// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuflow/webhook-delivery/internal/circuitbreaker"
)

// healthStatus is the response of GET /api/health.
type healthStatus struct {
	Store    string                          `json:"store"`
	Version  string                          `json:"version,omitempty"`
	Breakers map[string]circuitbreaker.Stats `json:"breakers"`
}

// initHealth registers the health endpoint on the given router.
func initHealth(apiRouter *mux.Router, context *Context) {
	apiRouter.Handle("/health", newContextHandler(context, handleGetHealth)).Methods("GET")
}

// handleGetHealth responds to GET /api/health, reporting store reachability
// and breaker states. A 503 means the store cannot be reached.
func handleGetHealth(c *Context, w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Store:    "ok",
		Breakers: map[string]circuitbreaker.Stats{},
	}

	version, err := c.Store.GetCurrentVersion()
	if err != nil {
		c.Logger.WithError(err).Error("failed to reach the store")
		status.Store = "unreachable"
		w.WriteHeader(http.StatusServiceUnavailable)
		outputJSON(c, w, status)
		return
	}
	status.Version = version.String()

	if c.Breakers != nil {
		status.Breakers = c.Breakers.Stats()
	}

	outputJSON(c, w, status)
}
