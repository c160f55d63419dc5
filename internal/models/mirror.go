package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncOutcome is the result of the last write attempt for a mirror record.
type SyncOutcome string

const (
	OutcomeSuccess SyncOutcome = "success"
	OutcomeError   SyncOutcome = "error"
	OutcomePending SyncOutcome = "pending"
)

// MirrorRecord links a source item to its destination page.
//
// DestinationID is empty until a create succeeds. ErrorMessage is set only when Outcome is [OutcomeError].
type MirrorRecord struct {
	ID                 string          `json:"id"`
	AccountID          string          `json:"accountId"`
	SourceItemID       string          `json:"googleTaskId"`
	DestinationID      string          `json:"notionPageId,omitempty"`
	Title              string          `json:"taskTitle"`
	Status             TaskStatus      `json:"taskStatus"`
	CollectionName     string          `json:"taskListName"`
	DueDate            *time.Time      `json:"dueDate,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	LastSyncedAt       time.Time       `json:"lastSyncedAt"`
	Outcome            SyncOutcome     `json:"syncStatus"`
	ErrorMessage       string          `json:"errorMessage,omitempty"`
	SourcePayload      json.RawMessage `json:"googleTaskData,omitempty"`
	DestinationPayload json.RawMessage `json:"notionPageData,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// NewMirrorRecord copies the denormalized fields of item into a record for account.
func NewMirrorRecord(accountID string, item SourceItem, now time.Time) *MirrorRecord {
	item = item.Normalized()
	return &MirrorRecord{
		AccountID:      accountID,
		SourceItemID:   item.ID,
		Title:          item.Title,
		Status:         item.Status,
		CollectionName: item.CollectionName,
		DueDate:        item.Due,
		Notes:          item.Notes,
		LastSyncedAt:   now,
		Outcome:        OutcomePending,
		SourcePayload:  item.Raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate implements [Model].
func (m *MirrorRecord) Validate() error {
	if m.AccountID == "" || m.SourceItemID == "" {
		return fmt.Errorf("mirror record requires account and source item ids")
	}
	switch m.Outcome {
	case OutcomeSuccess:
		if m.DestinationID == "" {
			return fmt.Errorf("successful mirror record %s has no destination id", m.SourceItemID)
		}
		if m.ErrorMessage != "" {
			return fmt.Errorf("successful mirror record %s carries an error message", m.SourceItemID)
		}
	case OutcomeError:
		if m.ErrorMessage == "" {
			return fmt.Errorf("failed mirror record %s has no error message", m.SourceItemID)
		}
	case OutcomePending:
	default:
		return fmt.Errorf("unknown sync outcome %q", m.Outcome)
	}
	return nil
}

// MirrorStats aggregates the mirror records of one account.
type MirrorStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Errored   int `json:"errors"`
}

// MirrorPage is one page of mirror records.
type MirrorPage struct {
	Records    []MirrorRecord `json:"tasks"`
	Pagination Page           `json:"pagination"`
}
