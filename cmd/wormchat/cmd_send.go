package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"wormchat/internal/conversation"
	"wormchat/internal/session"
)

var sendRaw bool

var sendCmd = &cobra.Command{
	Use:   "send <message...>",
	Short: "Send one message and print the reply",
	Long: `Sends a single message in the current conversation and prints the assistant's
markdown reply. The conversation id returned by the backend is stored, so
consecutive sends continue the same conversation.

Example:
  wormchat login ada@example.com
  wormchat send "What do worms eat?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendRaw, "raw", false, "Print the reply as raw markdown")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, kv, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	if sess.State() != session.StateLoggedIn {
		return errors.New("not logged in: run 'wormchat login <email>' first")
	}

	controller := conversation.NewController(newClient(), sess)
	resp, err := controller.Send(ctx, joinArgs(args))
	if err != nil {
		if errors.Is(err, conversation.ErrEmptyInput) {
			return err
		}
		if text := controller.Err(); text != "" {
			return errors.New(text)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if sendRaw {
		fmt.Fprintln(out, resp.OutputText)
		return nil
	}
	fmt.Fprintln(out, renderMarkdown(resp.OutputText))
	return nil
}

// renderMarkdown renders for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
