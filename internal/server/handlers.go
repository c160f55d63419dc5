package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/desertthunder/taskmirror/internal/tasks"
	"github.com/gorilla/mux"
)

// API holds the handlers for the sync routes.
type API struct {
	sync   SyncAPI
	db     Pinger
	logger *log.Logger
}

// NewAPI creates the route handlers.
func NewAPI(sync SyncAPI, db Pinger, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &API{sync: sync, db: db, logger: logger}
}

// Health reports liveness and database connectivity.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			a.logger.Error("health check failed", "error", err)
			resp["status"], resp["database"] = "degraded", "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartSync starts a manual pass and returns once it is queued.
func (a *API) StartSync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	entry, err := a.sync.Start(r.Context(), id, models.TriggerManual)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Sync started",
		"syncId":  entry.ID,
	})
}

// SyncStatus returns whether a pass is running and the recent runs.
func (a *API) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.sync.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// UpdateSettings applies a partial sync policy update.
func (a *API) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update tasks.PolicyUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "Invalid request body")
		return
	}

	policy, err := a.sync.SetPolicy(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Sync settings updated",
		"settings": policy,
	})
}

// ListTasks returns one page of mirror records.
func (a *API) ListTasks(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}

	result, err := a.sync.ListMirrorRecords(r.Context(), mux.Vars(r)["id"], page, limit)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TaskStats returns mirror record counts.
func (a *API) TaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.sync.Stats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// queryInt parses an optional integer query parameter. Missing values are 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
