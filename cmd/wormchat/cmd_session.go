// Package main implements the session commands: login, logout, new, status.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// SESSION COMMANDS
// =============================================================================

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in with an email address",
	Long: `Stores the email address as the signed-in session. No password is involved;
the address is sent with every message as mailAddress.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the current conversation",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new conversation",
	Long:  `Forgets the stored conversation id. The next message starts a fresh conversation.`,
	Args:  cobra.NoArgs,
	RunE:  runNewConversation,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state, conversation id and backend",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, kv, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	email := ""
	if len(args) > 0 {
		email = args[0]
	}
	if err := sess.Login(ctx, email); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", sess.Email())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, kv, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	if err := sess.Logout(ctx); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runNewConversation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, kv, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	if err := sess.NewConversation(ctx); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Started a new conversation")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess, kv, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State:        %s\n", sess.State())
	if email := sess.Email(); email != "" {
		fmt.Fprintf(out, "Email:        %s\n", email)
	}
	convID := sess.ConversationID()
	if convID == "" {
		convID = "(none)"
	}
	fmt.Fprintf(out, "Conversation: %s\n", convID)
	fmt.Fprintf(out, "Backend:      %s\n", cfg.BaseURL())
	fmt.Fprintf(out, "Storage:      %s\n", cfg.Storage.Backend)
	return nil
}
