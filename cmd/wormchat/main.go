// Package main implements the wormchat command line and interactive client.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wormchat/cmd/wormchat/chat"
	"wormchat/internal/config"
	"wormchat/internal/conversation"
	"wormchat/internal/logging"
	"wormchat/internal/session"
	"wormchat/internal/store"
	"wormchat/internal/transport"
)

var (
	// Global flags
	verbose    bool
	configPath string
	homeFlag   string
	apiBaseURL string
	apiKey     string
	ephemeral  bool

	// Resolved by PersistentPreRunE
	home string
	cfg  *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "wormchat",
	Short: "WormChat - chat with the Worm AI assistant from your terminal",
	Long: `WormChat is a minimal chat client for the PostWormAPI backend.

Sign in with just an email address; the email and the current conversation id
are kept in local storage so the next run continues where you left off.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadRuntime()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runInteractiveChat(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to <home>/logs")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <home>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "State directory (or set WORMCHAT_HOME, default: ~/.wormchat)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-base-url", "", "Backend base URL (or set WORMCHAT_API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Function key sent as x-functions-key (or set WORMCHAT_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep the session in memory only")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(stubBackendCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRuntime resolves home and configuration, then starts file logging.
// Priority: flags > environment (.env included) > config file > defaults.
func loadRuntime() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	var err error
	home, err = config.ResolveHome(homeFlag)
	if err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath(home)
	}
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}

	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if ephemeral {
		cfg.Storage.Backend = config.StorageMemory
	}
	if verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Initialize(home, logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return err
	}
	if err := logging.InitAudit(); err != nil {
		return err
	}

	logging.Boot("runtime loaded",
		zap.String("home", home),
		zap.String("config", path),
		zap.String("api_base_url", cfg.BaseURL()),
		zap.String("storage", cfg.Storage.Backend),
	)
	return nil
}

// openSession opens the configured store and restores the session from it.
// The caller closes the returned store.
func openSession(ctx context.Context) (*session.Manager, store.KV, error) {
	kv, err := store.Open(ctx, cfg.Storage, home)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	sess := session.NewManager(kv, session.WithTimeout(cfg.GetSessionTimeout()))
	if _, err := sess.Restore(ctx); err != nil {
		kv.Close()
		return nil, nil, err
	}
	return sess, kv, nil
}

// newClient builds the backend client from the loaded configuration.
func newClient() *transport.Client {
	return transport.NewClient(transport.Config{
		BaseURL: cfg.BaseURL(),
		APIKey:  cfg.APIKey,
		Timeout: cfg.GetRequestTimeout(),
	})
}

// runInteractiveChat launches the TUI.
func runInteractiveChat(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sess, kv, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()

	chatCfg := chat.Config{
		Session:    sess,
		Controller: conversation.NewController(newClient(), sess),
		Theme:      cfg.Theme,
		BaseURL:    cfg.BaseURL(),
	}

	if w, ok := kv.(store.Watcher); ok {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		chatCfg.StoreEvents = chat.WatchStore(watchCtx, w)
	}

	logging.UI("starting interactive chat", zap.String("state", sess.State().String()))
	return chat.RunInteractiveChat(chatCfg)
}

// joinArgs joins command arguments into a single message.
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
