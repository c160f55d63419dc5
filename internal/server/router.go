package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

// NewRouter registers the API routes.
//
// When apiKey is set, every route except /api/health requires it as a bearer token.
func NewRouter(api *API, apiKey string, logger *log.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(mux.MiddlewareFunc(Logging(logger)))
	r.Use(mux.MiddlewareFunc(Recovery(logger)))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, ErrNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed, "Method not allowed")
	})

	base := r.PathPrefix("/api").Subrouter()
	base.HandleFunc("/health", api.Health).Methods("GET")

	accounts := base.PathPrefix("/accounts/{id}").Subrouter()
	accounts.Use(mux.MiddlewareFunc(RequireAPIKey(apiKey)))

	accounts.HandleFunc("/sync", api.StartSync).Methods("POST")
	accounts.HandleFunc("/sync/status", api.SyncStatus).Methods("GET")
	accounts.HandleFunc("/sync/settings", api.UpdateSettings).Methods("PUT")
	accounts.HandleFunc("/tasks", api.ListTasks).Methods("GET")
	accounts.HandleFunc("/tasks/stats", api.TaskStats).Methods("GET")

	return r
}
