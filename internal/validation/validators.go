// Package validation holds the shared validator with the todo enum rules.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("todo_status", validateTodoStatus); err != nil {
		panic(fmt.Sprintf("failed to register todo_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("capture_source", validateCaptureSource); err != nil {
		panic(fmt.Sprintf("failed to register capture_source validator: %v", err))
	}
}

func validateTodoStatus(fl validator.FieldLevel) bool {
	return models.TodoStatus(fl.Field().String()).IsValid()
}

func validateCaptureSource(fl validator.FieldLevel) bool {
	return models.Source(fl.Field().String()).IsValid()
}

// ValidateTodo checks a record before it is written back through the API
func ValidateTodo(todo *models.Todo) error {
	if todo == nil {
		return fmt.Errorf("todo is required")
	}
	if err := Validate.Struct(todo); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}
	return nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// newline and tab survive
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
