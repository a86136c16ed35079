package devserver

import (
	"context"
	"fmt"
	"strings"
)

// Turn is what a Responder sees for one request.
type Turn struct {
	ConversationID string
	Email          string
	Text           string
	Number         int // 1-based turn number within the conversation
}

// Responder produces the assistant's markdown reply. An error is reported to
// the client as 502, as a failed upstream AI call would be.
type Responder interface {
	Respond(ctx context.Context, turn Turn) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, turn Turn) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, turn Turn) (string, error) {
	return f(ctx, turn)
}

// EchoResponder answers with a markdown echo of the message, enough to
// exercise the client's markdown renderer.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, turn Turn) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Turn %d\n\n", turn.Number)
	fmt.Fprintf(&sb, "**%s** said:\n\n", turn.Email)
	for _, line := range strings.Split(turn.Text, "\n") {
		fmt.Fprintf(&sb, "> %s\n", line)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- conversation: `%s`\n", turn.ConversationID)
	fmt.Fprintf(&sb, "- characters: %d\n", len([]rune(turn.Text)))
	return sb.String(), nil
}
