package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes.
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID, handler.instrument)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	api.HandleFunc("/indicators", handler.ComputeIndicators).Methods("POST")

	api.HandleFunc("/symbols", handler.ListSymbols).Methods("GET")
	api.HandleFunc("/symbols/{symbol}/indicators", handler.SymbolIndicators).Methods("GET")
	api.HandleFunc("/symbols/{symbol}/signals", handler.SymbolSignals).Methods("GET")
	api.HandleFunc("/symbols/{symbol}/window", handler.SymbolWindow).Methods("GET")
	api.Handle("/symbols/{symbol}/prices", handler.requireTOTP(http.HandlerFunc(handler.IngestPrices))).Methods("POST")
	api.Handle("/symbols/{symbol}/price", handler.requireTOTP(http.HandlerFunc(handler.ObservePrice))).Methods("POST")

	if handler.Hub != nil {
		r.Handle("/ws", handler.Hub).Methods("GET")
	}
	return r
}
