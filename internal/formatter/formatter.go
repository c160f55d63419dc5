// package formatter renders run logs and mirror records as text, Markdown, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/shared"
)

// Format selects an output representation.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts text, json, csv, markdown (or md). Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatDue(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// RenderRecords renders one page of mirror records in the given format.
func RenderRecords(page *models.MirrorPage, format Format, p *Palette) ([]byte, error) {
	switch format {
	case FormatJSON:
		return shared.MarshalJSON(page, true)
	case FormatCSV:
		return RecordsToCSV(page.Records)
	case FormatMarkdown:
		return RecordsToMarkdown(page)
	default:
		return RecordsToText(page, p)
	}
}

// RecordsToCSV writes records with columns: ID, Task ID, Page ID, Title, Status, List, Due, Outcome, Error, Last Synced
func RecordsToCSV(records []models.MirrorRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Task ID", "Page ID", "Title", "Status", "List", "Due", "Outcome", "Error", "Last Synced"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.ID,
			r.SourceItemID,
			r.DestinationID,
			r.Title,
			string(r.Status),
			r.CollectionName,
			formatDue(r.DueDate),
			string(r.Outcome),
			r.ErrorMessage,
			formatTime(&r.LastSyncedAt),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// RecordsToMarkdown renders a page of records as a Markdown table.
func RecordsToMarkdown(page *models.MirrorPage) ([]byte, error) {
	var buf bytes.Buffer

	pg := page.Pagination
	fmt.Fprintf(&buf, "# Mirrored tasks\n\n")
	fmt.Fprintf(&buf, "**Page**: %d of %d (%d total)\n\n", pg.Number, pg.Pages, pg.Total)

	buf.WriteString("| Title | List | Status | Due | Outcome | Error |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range page.Records {
		fmt.Fprintf(&buf, "| %s | %s | %s | %s | %s | %s |\n",
			escapeCell(r.Title),
			escapeCell(r.CollectionName),
			r.Status,
			formatDue(r.DueDate),
			r.Outcome,
			escapeCell(r.ErrorMessage),
		)
	}
	return buf.Bytes(), nil
}

// RecordsToText renders a page of records as a numbered list.
func RecordsToText(page *models.MirrorPage, p *Palette) ([]byte, error) {
	var buf bytes.Buffer

	pg := page.Pagination
	buf.WriteString(p.Title(fmt.Sprintf("Tasks: %d (page %d of %d)", pg.Total, pg.Number, pg.Pages)))
	buf.WriteString("\n\n")

	offset := pg.Offset()
	for i, r := range page.Records {
		mark := " "
		if r.Status.Completed() {
			mark = "x"
		}
		fmt.Fprintf(&buf, "%d. [%s] %s", offset+i+1, mark, r.Title)
		if r.CollectionName != "" {
			fmt.Fprintf(&buf, " (%s)", r.CollectionName)
		}
		if due := formatDue(r.DueDate); due != "" {
			fmt.Fprintf(&buf, " due %s", due)
		}
		fmt.Fprintf(&buf, " %s", p.Outcome(r.Outcome))
		if r.ErrorMessage != "" {
			fmt.Fprintf(&buf, " %s", p.Muted(r.ErrorMessage))
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// RenderRuns renders run log entries in the given format.
func RenderRuns(runs []models.RunLogEntry, format Format, p *Palette) ([]byte, error) {
	switch format {
	case FormatJSON:
		return shared.MarshalJSON(runs, true)
	case FormatCSV:
		return RunsToCSV(runs)
	case FormatMarkdown:
		return RunsToMarkdown(runs)
	default:
		return RunsToText(runs, p)
	}
}

// RunsToCSV writes runs with columns: ID, Trigger, Status, Processed, Created, Updated, Errored, Duration (ms), Started, Finished, Error
func RunsToCSV(runs []models.RunLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Trigger", "Status", "Processed", "Created", "Updated", "Errored", "Duration (ms)", "Started", "Finished", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		c := run.Counters
		row := []string{
			run.ID,
			string(run.Trigger),
			string(run.Status),
			strconv.Itoa(c.Seen),
			strconv.Itoa(c.Created),
			strconv.Itoa(c.Updated),
			strconv.Itoa(c.Errored),
			strconv.FormatInt(run.DurationMillis(), 10),
			formatTime(&run.StartedAt),
			formatTime(run.FinishedAt),
			run.ErrorMessage,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// RunsToMarkdown renders runs as a Markdown table.
func RunsToMarkdown(runs []models.RunLogEntry) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Recent syncs\n\n")
	buf.WriteString("| Started | Trigger | Status | Processed | Created | Updated | Errored | Duration |\n")
	buf.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, run := range runs {
		c := run.Counters
		fmt.Fprintf(&buf, "| %s | %s | %s | %d | %d | %d | %d | %s |\n",
			formatTime(&run.StartedAt), run.Trigger, run.Status,
			c.Seen, c.Created, c.Updated, c.Errored, run.Duration.Round(time.Millisecond))
	}

	for _, run := range runs {
		if run.ErrorMessage != "" {
			fmt.Fprintf(&buf, "\n**%s**: %s\n", run.ID, run.ErrorMessage)
		}
	}
	return buf.Bytes(), nil
}

// RunsToText renders one line per run, newest first as given.
func RunsToText(runs []models.RunLogEntry, p *Palette) ([]byte, error) {
	var buf bytes.Buffer

	if len(runs) == 0 {
		buf.WriteString(p.Muted("No syncs recorded"))
		buf.WriteString("\n")
		return buf.Bytes(), nil
	}

	for _, run := range runs {
		c := run.Counters
		fmt.Fprintf(&buf, "%s  %-9s %s  processed=%d created=%d updated=%d errored=%d",
			formatTime(&run.StartedAt), run.Trigger, p.RunStatus(run.Status),
			c.Seen, c.Created, c.Updated, c.Errored)
		if run.Status.Terminal() {
			fmt.Fprintf(&buf, " in %s", run.Duration.Round(time.Millisecond))
		}
		if run.ErrorMessage != "" {
			fmt.Fprintf(&buf, "\n    %s", p.Muted(run.ErrorMessage))
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// StatsToText renders mirror record counts.
func StatsToText(stats *models.MirrorStats, p *Palette) []byte {
	var buf bytes.Buffer
	buf.WriteString(p.Title("Task stats"))
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "Total:     %d\n", stats.Total)
	fmt.Fprintf(&buf, "Completed: %d\n", stats.Completed)
	fmt.Fprintf(&buf, "Pending:   %d\n", stats.Pending)
	fmt.Fprintf(&buf, "Errors:    %d\n", stats.Errored)
	return buf.Bytes()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
