package api

import "github.com/gorilla/mux"

// Register registers the API endpoints on the given router.
func Register(rootRouter *mux.Router, context *Context) {
	apiRouter := rootRouter.PathPrefix("/api").Subrouter()

	initHealth(apiRouter, context)
	initSubscription(apiRouter, context)
	initEvent(apiRouter, context)
}
