package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrNotConfigured = fmt.Errorf("destination not configured")

	// Authentication errors
	ErrAuthFailed     = fmt.Errorf("authentication failed")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrFetchFailed        = fmt.Errorf("source fetch failed")
	ErrWriteFailed        = fmt.Errorf("destination write failed")

	// Run coordination errors
	ErrAlreadyRunning = fmt.Errorf("sync already in progress")
	ErrQueueFull      = fmt.Errorf("sync queue is full")
	ErrRunLogTerminal = fmt.Errorf("run log entry already finished")

	// Lookup errors
	ErrAccountNotFound = fmt.Errorf("account not found")
	ErrRecordNotFound  = fmt.Errorf("mirror record not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
