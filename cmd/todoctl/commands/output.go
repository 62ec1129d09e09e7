package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/logger"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/models"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/store"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputYAML = "yaml"
	outputJSON = "json"

	// previewLength caps todo text in the table
	previewLength = 60
)

// todoView is the printable form of a stored record
type todoView struct {
	Key          string  `json:"key" yaml:"key"`
	TodoText     string  `json:"todo_text" yaml:"todo_text"`
	Status       string  `json:"status" yaml:"status"`
	Source       string  `json:"source" yaml:"source"`
	TargetDate   string  `json:"target_date,omitempty" yaml:"target_date,omitempty"`
	MessageURL   string  `json:"message_url,omitempty" yaml:"message_url,omitempty"`
	CreatedAt    string  `json:"created_at" yaml:"created_at"`
	PreviousText *string `json:"previous_text,omitempty" yaml:"previous_text,omitempty"`
}

func newTodoView(key string, todo *models.Todo) todoView {
	return todoView{
		Key:          key,
		TodoText:     todo.TodoText,
		Status:       string(todo.Status),
		Source:       string(todo.Source),
		TargetDate:   todo.TargetDate,
		MessageURL:   todo.MessageURL,
		CreatedAt:    todo.CreatedAt.UTC().Format(time.RFC3339),
		PreviousText: todo.PreviousText,
	}
}

func validOutput(format string) error {
	switch format {
	case outputText, outputYAML, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}
}

// writeEntries prints entries in the requested format
func writeEntries(w io.Writer, format string, entries []store.Entry) error {
	views := make([]todoView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newTodoView(e.Key, e.Todo))
	}

	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case outputYAML:
		return encodeYAML(w, views)
	}

	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No pending todos")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATUS\tSOURCE\tTARGET\tTEXT")
	for _, v := range views {
		target := v.TargetDate
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Key, v.Status, v.Source, target,
			logger.SanitizeString(v.TodoText, previewLength))
	}
	return tw.Flush()
}

// writeEntry prints a single record in the requested format
func writeEntry(w io.Writer, format string, key string, todo *models.Todo) error {
	view := newTodoView(key, todo)

	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case outputYAML:
		return encodeYAML(w, view)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Key:\t%s\n", view.Key)
	fmt.Fprintf(tw, "Text:\t%s\n", view.TodoText)
	fmt.Fprintf(tw, "Status:\t%s\n", view.Status)
	fmt.Fprintf(tw, "Source:\t%s\n", view.Source)
	if view.TargetDate != "" {
		fmt.Fprintf(tw, "Target date:\t%s\n", view.TargetDate)
	}
	if view.MessageURL != "" {
		fmt.Fprintf(tw, "Message:\t%s\n", view.MessageURL)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", view.CreatedAt)
	if view.PreviousText != nil {
		fmt.Fprintf(tw, "Previous text:\t%s\n", *view.PreviousText)
	}
	return tw.Flush()
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
