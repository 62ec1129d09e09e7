package slack

import (
	"encoding/json"
	"fmt"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// EventReactionAdded is the Events API type of a reaction_added event
const EventReactionAdded = "reaction_added"

// Interaction payload types
const (
	InteractionMessageAction  = slackapi.InteractionTypeMessageAction
	InteractionViewSubmission = slackapi.InteractionTypeViewSubmission
)

// ItemTypeMessage is the reaction item type for plain messages
const ItemTypeMessage = "message"

// ParseEvent decodes an Events API body. The verification token is not
// checked since requests are authenticated by signature.
func ParseEvent(body []byte) (slackevents.EventsAPIEvent, error) {
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return slackevents.EventsAPIEvent{}, fmt.Errorf("failed to parse event: %w", err)
	}
	return ev, nil
}

// Challenge returns the url_verification challenge carried by ev
func Challenge(ev slackevents.EventsAPIEvent) (string, bool) {
	if ev.Type != slackevents.URLVerification {
		return "", false
	}
	handshake, ok := ev.Data.(*slackevents.EventsAPIURLVerificationEvent)
	if !ok {
		return "", false
	}
	return handshake.Challenge, true
}

// ReactionItem is the message a reaction was attached to
type ReactionItem struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Ts      string `json:"ts"`
}

// ReactionEvent is a reaction_added event as queued for capture
type ReactionEvent struct {
	Type     string       `json:"type"`
	User     string       `json:"user"`
	Reaction string       `json:"reaction"`
	Item     ReactionItem `json:"item"`
}

// ReactionAdded extracts the reaction from an event_callback envelope
func ReactionAdded(ev slackevents.EventsAPIEvent) (ReactionEvent, bool) {
	if ev.Type != slackevents.CallbackEvent {
		return ReactionEvent{}, false
	}
	added, ok := ev.InnerEvent.Data.(*slackevents.ReactionAddedEvent)
	if !ok || added == nil {
		return ReactionEvent{}, false
	}
	return ReactionEvent{
		Type:     EventReactionAdded,
		User:     added.User,
		Reaction: added.Reaction,
		Item: ReactionItem{
			Type:    added.Item.Type,
			Channel: added.Item.Channel,
			Ts:      added.Item.Timestamp,
		},
	}, true
}

// InteractionPayload is the decoded "payload" form field of an interactivity request
type InteractionPayload struct {
	slackapi.InteractionCallback
}

// ParseInteraction decodes the payload form field
func ParseInteraction(raw string) (*InteractionPayload, error) {
	var p InteractionPayload
	if err := json.Unmarshal([]byte(raw), &p.InteractionCallback); err != nil {
		return nil, fmt.Errorf("failed to decode interaction payload: %w", err)
	}
	return &p, nil
}

// ShortcutInvocation is a message shortcut that should open the capture modal
type ShortcutInvocation struct {
	TriggerID   string
	UserID      string
	ChannelID   string
	MessageTs   string
	MessageText string
}

// ModalMetadata is round-tripped through the capture modal's private_metadata.
// Truncated is set when MessageText was cut to fit the field.
type ModalMetadata struct {
	ChannelID   string `json:"channel_id"`
	MessageTs   string `json:"message_ts"`
	MessageText string `json:"message_text"`
	Permalink   string `json:"permalink"`
	Truncated   bool   `json:"message_truncated,omitempty"`
}

// ModalSubmission is a submitted capture modal
type ModalSubmission struct {
	UserID       string        `json:"user_id"`
	Metadata     ModalMetadata `json:"metadata"`
	OverrideText string        `json:"override_text"`
}

// Shortcut extracts the shortcut fields from a message_action payload
func (p *InteractionPayload) Shortcut() ShortcutInvocation {
	return ShortcutInvocation{
		TriggerID:   p.TriggerID,
		UserID:      p.User.ID,
		ChannelID:   p.Channel.ID,
		MessageTs:   p.Message.Timestamp,
		MessageText: p.Message.Text,
	}
}

// Submission extracts the modal metadata and the optional override text
// from a view_submission payload.
func (p *InteractionPayload) Submission() (ModalSubmission, error) {
	if p.View.PrivateMetadata == "" {
		return ModalSubmission{}, fmt.Errorf("view_submission without private_metadata")
	}
	var meta ModalMetadata
	if err := json.Unmarshal([]byte(p.View.PrivateMetadata), &meta); err != nil {
		return ModalSubmission{}, fmt.Errorf("failed to decode private_metadata: %w", err)
	}

	sub := ModalSubmission{UserID: p.User.ID, Metadata: meta}
	if p.View.State != nil {
		if block, ok := p.View.State.Values[TodoInputBlockID]; ok {
			if input, ok := block[TodoInputActionID]; ok {
				sub.OverrideText = input.Value
			}
		}
	}
	return sub, nil
}
