package slack

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	slackapi "github.com/slack-go/slack"
)

const (
	// TodoModalCallbackID identifies capture modal submissions
	TodoModalCallbackID = "todo_modal_submit"
	// TodoInputBlockID is the block holding the optional override text
	TodoInputBlockID = "todo_input_block"
	// TodoInputActionID is the input element inside TodoInputBlockID
	TodoInputActionID = "todo_text"

	// EmptyMessagePlaceholder stands in for shortcut targets without text
	EmptyMessagePlaceholder = "(no content)"

	// MaxPrivateMetadata is Slack's limit on a view's private_metadata
	MaxPrivateMetadata = 3000

	previewMaxRunes = 100
)

// View is a modal definition for views.open
type View = slackapi.ModalViewRequest

func plainText(s string) *slackapi.TextBlockObject {
	return slackapi.NewTextBlockObject(slackapi.PlainTextType, s, false, false)
}

func mrkdwn(s string) *slackapi.TextBlockObject {
	return slackapi.NewTextBlockObject(slackapi.MarkdownType, s, false, false)
}

// TodoModal builds the capture modal for a message. meta is carried through
// private_metadata so the submission only refetches text that had to be cut.
func TodoModal(meta ModalMetadata) (View, error) {
	encoded, err := encodeMetadata(meta)
	if err != nil {
		return View{}, err
	}

	input := slackapi.NewInputBlock(
		TodoInputBlockID,
		plainText("Todo"),
		nil,
		slackapi.NewPlainTextInputBlockElement(plainText("Leave empty to let AI summarize"), TodoInputActionID),
	)
	input.Optional = true

	return View{
		Type:            slackapi.VTModal,
		CallbackID:      TodoModalCallbackID,
		Title:           plainText("Add to Todo"),
		Submit:          plainText("Add"),
		Close:           plainText("Cancel"),
		PrivateMetadata: encoded,
		Blocks: slackapi.Blocks{BlockSet: []slackapi.Block{
			slackapi.NewSectionBlock(mrkdwn("*Selected message:*\n> "+preview(meta.MessageText)), nil, nil),
			input,
		}},
	}, nil
}

// AccessDeniedModal is shown to anyone but the authorized user
func AccessDeniedModal() View {
	return View{
		Type:  slackapi.VTModal,
		Title: plainText("Access denied"),
		Close: plainText("OK"),
		Blocks: slackapi.Blocks{BlockSet: []slackapi.Block{
			slackapi.NewSectionBlock(mrkdwn("🔒 *This is a personal app.*\n\nOnly the app owner can use this feature."), nil, nil),
		}},
	}
}

// encodeMetadata serializes meta for private_metadata, cutting MessageText
// until the result fits MaxPrivateMetadata bytes.
func encodeMetadata(meta ModalMetadata) (string, error) {
	for {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return "", fmt.Errorf("failed to encode modal metadata: %w", err)
		}
		over := len(encoded) - MaxPrivateMetadata
		if over <= 0 {
			return string(encoded), nil
		}
		if meta.MessageText == "" {
			return "", fmt.Errorf("modal metadata is %d bytes, limit is %d", len(encoded), MaxPrivateMetadata)
		}
		meta.MessageText = truncateBytes(meta.MessageText, len(meta.MessageText)-over)
		meta.Truncated = true
	}
}

// truncateBytes cuts s to at most n bytes without splitting a rune
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewMaxRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewMaxRunes]) + "..."
}
