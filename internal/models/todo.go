package models

import (
	"time"
)

// Source identifies which capture path created or last touched a todo
type Source string

const (
	SourceEmoji    Source = "emoji"
	SourceShortcut Source = "shortcut"
)

// IsValid reports whether s is a known capture source
func (s Source) IsValid() bool {
	switch s {
	case SourceEmoji, SourceShortcut:
		return true
	default:
		return false
	}
}

// TodoStatus represents the lifecycle stage of a todo
type TodoStatus string

const (
	TodoStatusPending TodoStatus = "pending"
	TodoStatusUpdated TodoStatus = "updated"
	TodoStatusWritten TodoStatus = "written"
)

// IsValid reports whether s is a known status
func (s TodoStatus) IsValid() bool {
	switch s {
	case TodoStatusPending, TodoStatusUpdated, TodoStatusWritten:
		return true
	default:
		return false
	}
}

// IsPending reports whether the todo still has to be filed by the note client
func (s TodoStatus) IsPending() bool {
	return s == TodoStatusPending || s == TodoStatusUpdated
}

// Decision is the outcome of comparing a capture against stored state
type Decision string

const (
	DecisionCreate    Decision = "create"
	DecisionOverwrite Decision = "overwrite"
	DecisionIgnore    Decision = "ignore"
)

// Todo is a captured task, keyed by the source message's channel and timestamp
type Todo struct {
	TodoText     string     `json:"todo_text" validate:"required"`
	MessageURL   string     `json:"message_url" validate:"omitempty,url"`
	Source       Source     `json:"source" validate:"capture_source"`
	TargetDate   string     `json:"target_date" validate:"omitempty,datetime=2006-01-02"`
	Status       TodoStatus `json:"status" validate:"todo_status"`
	CreatedAt    time.Time  `json:"created_at"`
	PreviousText *string    `json:"previous_text"`
}
