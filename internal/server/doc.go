// Package server exposes sync operations over HTTP.
//
// # Routes
//
//   - GET  /api/health : liveness and database ping
//   - POST /api/accounts/{id}/sync : start a manual pass (202, 409 when running, 503 when the queue is full)
//   - GET  /api/accounts/{id}/sync/status : running flag and recent runs
//   - PUT  /api/accounts/{id}/sync/settings : partial policy update
//   - GET  /api/accounts/{id}/tasks?page=&limit= : mirror records, most recently synced first
//   - GET  /api/accounts/{id}/tasks/stats : record counts
//
// Errors are JSON [ErrorResponse] bodies. Sentinel errors from [shared] map to status codes in one place.
//
// # Middleware
//
// [Logging], [Recovery] and [RequireAPIKey] share the [Middleware] signature and plug into gorilla/mux.
package server
