package views

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"taskflow/backend"
)

// Field is a column in plain-text output.
type Field struct {
	Name     string
	Width    int
	Align    string // left, right
	Truncate bool
}

// DefaultFields is the column layout used by 'taskflow list'.
var DefaultFields = []Field{
	{Name: "id", Width: 5, Align: "right"},
	{Name: "status", Width: 13},
	{Name: "title", Width: 40, Truncate: true},
	{Name: "created", Width: 10},
}

// Renderer writes tasks as aligned plain-text rows.
type Renderer struct {
	fields []Field
	writer io.Writer
}

// NewRenderer creates a renderer. nil fields means DefaultFields.
func NewRenderer(fields []Field, writer io.Writer) *Renderer {
	if fields == nil {
		fields = DefaultFields
	}
	return &Renderer{fields: fields, writer: writer}
}

// Render writes one line per task.
func (r *Renderer) Render(tasks []backend.Task) {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(r.writer, "No tasks")
		return
	}
	for i := range tasks {
		_, _ = fmt.Fprintln(r.writer, r.line(&tasks[i]))
	}
}

// RenderScored writes search hits with their similarity.
func (r *Renderer) RenderScored(hits []backend.ScoredTask) {
	if len(hits) == 0 {
		_, _ = fmt.Fprintln(r.writer, "No matching tasks")
		return
	}
	for i := range hits {
		_, _ = fmt.Fprintf(r.writer, "%5.1f%%  %s\n", hits[i].Similarity*100, r.line(&hits[i].Task))
	}
}

// RenderDetail writes every field of one task.
func (r *Renderer) RenderDetail(t *backend.Task) {
	_, _ = fmt.Fprintf(r.writer, "ID:          %d\n", t.ID)
	_, _ = fmt.Fprintf(r.writer, "Title:       %s\n", t.Title)
	_, _ = fmt.Fprintf(r.writer, "Status:      %s\n", t.Status)
	if t.Description != "" {
		_, _ = fmt.Fprintf(r.writer, "Description: %s\n", t.Description)
	}
	_, _ = fmt.Fprintf(r.writer, "Created:     %s\n", formatDateTime(t.CreatedAt, time.RFC3339))
	_, _ = fmt.Fprintf(r.writer, "Updated:     %s\n", formatDateTime(t.UpdatedAt, time.RFC3339))
}

func (r *Renderer) line(t *backend.Task) string {
	parts := make([]string, 0, len(r.fields))
	for _, f := range r.fields {
		parts = append(parts, formatField(t, f))
	}
	return strings.TrimRight(strings.Join(parts, " "), " ")
}

// formatField formats a task field according to field configuration
func formatField(t *backend.Task, field Field) string {
	var value string

	switch field.Name {
	case "id":
		value = strconv.FormatInt(t.ID, 10)
	case "status":
		value = FormatStatus(t.Status)
	case "title":
		value = t.Title
	case "description":
		value = t.Description
	case "created":
		value = formatDateTime(t.CreatedAt, DefaultDateFormat)
	case "updated":
		value = formatDateTime(t.UpdatedAt, DefaultDateFormat)
	}

	if field.Width > 0 {
		if field.Truncate && utf8.RuneCountInString(value) > field.Width {
			runes := []rune(value)
			value = string(runes[:field.Width-3]) + "..."
		}
		if field.Align == "right" {
			value = fmt.Sprintf("%*s", field.Width, value)
		} else {
			value = fmt.Sprintf("%-*s", field.Width, value)
		}
	}
	return value
}

// FormatStatus formats a task status for display
func FormatStatus(status backend.TaskStatus) string {
	switch status {
	case backend.StatusDone:
		return "[DONE]"
	case backend.StatusInProgress:
		return "[IN-PROGRESS]"
	default:
		return "[TODO]"
	}
}

// formatDateTime formats a time.Time value for display
func formatDateTime(t time.Time, format string) string {
	if t.IsZero() {
		return ""
	}
	if format == "" {
		format = DefaultDateFormat
	}
	return t.Local().Format(format)
}
