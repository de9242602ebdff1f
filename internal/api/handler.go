package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/docuflow/webhook-delivery/model"
)

type contextHandlerFunc func(c *Context, w http.ResponseWriter, r *http.Request)

// contextHandler clones the base context per request, annotating its logger
// with a fresh request id.
type contextHandler struct {
	context *Context
	handler contextHandlerFunc
}

func newContextHandler(context *Context, handler contextHandlerFunc) *contextHandler {
	return &contextHandler{
		context: context,
		handler: handler,
	}
}

func (h *contextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	context := h.context.Clone()
	context.RequestID = model.NewID()
	context.Logger = context.Logger.WithFields(logrus.Fields{
		"path":    r.URL.Path,
		"request": context.RequestID,
	})

	h.handler(context, w, r)
}

// outputJSON writes the given data as json to the response, logging any
// encoding failure since the status line is already gone.
func outputJSON(c *Context, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		c.Logger.WithError(err).Error("failed to encode result")
	}
}
