package models

import (
	"encoding/json"
	"strings"
	"time"
)

// TaskStatus is the source-side completion state of an item.
type TaskStatus string

const (
	TaskPending   TaskStatus = "needsAction"
	TaskCompleted TaskStatus = "completed"
)

const (
	DefaultTitle          = "Untitled Task"
	DefaultCollectionName = "My Tasks"
)

// Completed reports whether the status is the completed value.
func (s TaskStatus) Completed() bool {
	return s == TaskCompleted
}

// SourceItem is a task read from the source service during a pass.
type SourceItem struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Status         TaskStatus      `json:"status"`
	Due            *time.Time      `json:"due,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CollectionID   string          `json:"collectionId"`
	CollectionName string          `json:"collectionName"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Normalized returns a copy with empty fields replaced by their defaults.
func (i SourceItem) Normalized() SourceItem {
	if strings.TrimSpace(i.Title) == "" {
		i.Title = DefaultTitle
	}
	if i.Status == "" {
		i.Status = TaskPending
	}
	if strings.TrimSpace(i.CollectionName) == "" {
		i.CollectionName = DefaultCollectionName
	}
	return i
}

// DueDate returns the due date as YYYY-MM-DD in UTC, or "" when unset.
func (i SourceItem) DueDate() string {
	if i.Due == nil || i.Due.IsZero() {
		return ""
	}
	return i.Due.UTC().Format(time.DateOnly)
}

// WriteResult is what the destination returns for a created or updated page.
type WriteResult struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
