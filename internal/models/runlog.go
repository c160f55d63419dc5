package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerKind records what started a pass.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerAutomatic TriggerKind = "automatic"
)

// Valid reports whether k is a known trigger.
func (k TriggerKind) Valid() bool {
	return k == TriggerManual || k == TriggerAutomatic
}

// RunStatus is the state of a run log entry: started, then exactly one of completed or failed.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// CanTransition reports whether s may move to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	return s == RunStarted && next.Terminal()
}

// RunCounters are the per-pass item tallies. They only grow during a pass.
type RunCounters struct {
	Seen    int `json:"tasksProcessed"`
	Created int `json:"tasksCreated"`
	Updated int `json:"tasksUpdated"`
	Errored int `json:"tasksErrored"`
}

// RunLogEntry is the audit record of one synchronization pass.
type RunLogEntry struct {
	ID           string        `json:"id"`
	AccountID    string        `json:"accountId"`
	Trigger      TriggerKind   `json:"syncType"`
	Status       RunStatus     `json:"status"`
	Counters     RunCounters   `json:"counters"`
	Duration     time.Duration `json:"-"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   *time.Time    `json:"completedAt,omitempty"`
}

// DurationMillis is the pass duration in whole milliseconds.
func (e *RunLogEntry) DurationMillis() int64 {
	return e.Duration.Milliseconds()
}

// MarshalJSON adds the duration in milliseconds.
func (e RunLogEntry) MarshalJSON() ([]byte, error) {
	type entry RunLogEntry
	return json.Marshal(struct {
		entry
		DurationMS int64 `json:"duration"`
	}{entry: entry(e), DurationMS: e.Duration.Milliseconds()})
}

// Validate implements [Model].
func (e *RunLogEntry) Validate() error {
	if e.AccountID == "" {
		return fmt.Errorf("run log entry requires an account id")
	}
	if !e.Trigger.Valid() {
		return fmt.Errorf("unknown trigger kind %q", e.Trigger)
	}
	if e.Status == RunFailed && e.ErrorMessage == "" {
		return fmt.Errorf("failed run log entry requires an error message")
	}
	c := e.Counters
	if c.Seen < 0 || c.Created < 0 || c.Updated < 0 || c.Errored < 0 {
		return fmt.Errorf("run counters must be non-negative")
	}
	return nil
}
