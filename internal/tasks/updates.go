package tasks

import (
	"fmt"

	"github.com/desertthunder/taskmirror/internal/models"
)

// ProgressUpdate represents a progress event during a sync pass.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Pass phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Pass phase enumeration
type Phase int

const (
	LoadAccount Phase = iota
	RefreshCredentials
	FetchItems
	MirrorItems
	FinishRun
)

func (p Phase) String() string {
	switch p {
	case LoadAccount:
		return "load_account"
	case RefreshCredentials:
		return "refresh_credentials"
	case FetchItems:
		return "fetch_items"
	case MirrorItems:
		return "mirror_items"
	case FinishRun:
		return "finish_run"
	default:
		return ""
	}
}

func loadAccountUpdate(accountID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadAccount,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loading account %s...", accountID),
	}
}

func refreshCredentialsUpdate(email string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RefreshCredentials,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Checking Google credentials for %s...", email),
	}
}

func fetchItemsUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchItems,
		Step:    1,
		Total:   1,
		Message: "Fetching tasks from Google Tasks...",
	}
}

func fetchedItemsUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchItems,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d tasks", total),
	}
}

func mirrorItemUpdate(step, total int, item models.SourceItem, action itemAction, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s %s", step, total, action.symbol(), item.Title)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return ProgressUpdate{
		Phase:   MirrorItems,
		Step:    step,
		Total:   total,
		Message: msg,
	}
}

func finishRunUpdate(entry *models.RunLogEntry) ProgressUpdate {
	c := entry.Counters
	msg := fmt.Sprintf("Sync %s: %d processed, %d created, %d updated, %d errors",
		entry.Status, c.Seen, c.Created, c.Updated, c.Errored)
	if entry.ErrorMessage != "" {
		msg = fmt.Sprintf("Sync %s: %s", entry.Status, entry.ErrorMessage)
	}
	return ProgressUpdate{
		Phase:   FinishRun,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    entry,
	}
}
