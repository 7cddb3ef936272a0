package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeVerify, h.handleVerify).Methods(http.MethodPost).Name(routeNameVerify)
	r.HandleFunc(routeIdentity, h.handleIdentity).Methods(http.MethodGet).Name(routeNameIdentity)
}
