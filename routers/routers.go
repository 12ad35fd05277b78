package routers

import (
	"state-connector/handlers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up the trigger endpoint
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// ?prove=<chain>, ?verify=<hex period claim>, or a bare liveness probe
	r.HandleFunc("/", h.Trigger).Methods("GET")
}
