// Package dedup decides how a capture interacts with an already stored todo.
package dedup

import "github.com/PLUTO-NIX/slack-to-obsidian/internal/models"

// Decide maps the stored record (nil when absent) and the source of a new
// capture to the action to take. Only existing.Source is consulted; status,
// text and timestamps never change the outcome. A shortcut capture may
// supersede an emoji capture, never the other way around.
func Decide(existing *models.Todo, newSource models.Source) models.Decision {
	if existing == nil {
		return models.DecisionCreate
	}
	if existing.Source == models.SourceEmoji && newSource == models.SourceShortcut {
		return models.DecisionOverwrite
	}
	return models.DecisionIgnore
}
