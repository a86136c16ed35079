// Package logging provides config-driven categorized file logging for WormChat.
// Logs are written to <home>/logs/ as one daily file shared by all categories.
// Logging is controlled by debug mode: when it is off, every logger is a no-op.
// Nothing is written to stdout or stderr because the terminal belongs to the TUI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config resolution
	CategorySession Category = "session" // Login/logout, conversation id changes
	CategoryAPI     Category = "api"     // Backend exchanges
	CategoryStore   Category = "store"   // Key-value persistence
	CategoryUI      Category = "ui"      // TUI state transitions
	CategoryServer  Category = "server"  // Stub backend
)

// Config mirrors config.LoggingConfig so this package stays import-free.
type Config struct {
	DebugMode  bool
	Level      string // debug, info, warn, error
	JSONFormat bool
	Categories map[string]bool
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	cfg     Config
	loggers = make(map[Category]*zap.Logger)
	logsDir string
)

// Initialize sets up the logs directory under home and builds the root logger.
// Should be called once at startup.
func Initialize(home string, c Config) error {
	if home == "" {
		return fmt.Errorf("home directory required")
	}

	mu.Lock()
	defer mu.Unlock()

	cfg = c
	loggers = make(map[Category]*zap.Logger)
	logsDir = filepath.Join(home, "logs")

	if !c.DebugMode {
		root = zap.NewNop()
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_wormchat.log", time.Now().Format("2006-01-02")))

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(parseLevel(c.Level))
	zc.Sampling = nil
	zc.OutputPaths = []string{logPath}
	zc.ErrorOutputPaths = []string{logPath}
	if !c.JSONFormat {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zc.Build()
	if err != nil {
		root = zap.NewNop()
		return fmt.Errorf("failed to build logger: %w", err)
	}
	root = l

	root.Named(string(CategoryBoot)).Info("logging initialized",
		zap.String("logs_dir", logsDir),
		zap.String("level", zc.Level.String()),
		zap.Int("category_overrides", len(c.Categories)),
	)
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether logging is enabled at all.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return cfg.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !cfg.DebugMode {
		return false
	}
	if cfg.Categories == nil {
		return true
	}
	enabled, exists := cfg.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// LogsDir returns the directory log files are written to.
func LogsDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return logsDir
}

// Get returns (or creates) the logger for a category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := zap.NewNop()
	if categoryEnabledLocked(category) {
		l = root.Named(string(category))
	}
	loggers[category] = l
	return l
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	mu.RLock()
	l := root
	mu.RUnlock()
	_ = l.Sync()
}

// CloseAll flushes and resets all loggers, the audit log included, to no-ops.
func CloseAll() {
	CloseAudit()

	mu.Lock()
	defer mu.Unlock()

	_ = root.Sync()
	root = zap.NewNop()
	cfg = Config{}
	loggers = make(map[Category]*zap.Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(msg string, fields ...zap.Field) {
	Get(CategoryBoot).Info(msg, fields...)
}

// Session logs to the session category
func Session(msg string, fields ...zap.Field) {
	Get(CategorySession).Info(msg, fields...)
}

// SessionDebug logs debug to the session category
func SessionDebug(msg string, fields ...zap.Field) {
	Get(CategorySession).Debug(msg, fields...)
}

// API logs to the api category
func API(msg string, fields ...zap.Field) {
	Get(CategoryAPI).Info(msg, fields...)
}

// APIDebug logs debug to the api category
func APIDebug(msg string, fields ...zap.Field) {
	Get(CategoryAPI).Debug(msg, fields...)
}

// Store logs to the store category
func Store(msg string, fields ...zap.Field) {
	Get(CategoryStore).Info(msg, fields...)
}

// StoreDebug logs debug to the store category
func StoreDebug(msg string, fields ...zap.Field) {
	Get(CategoryStore).Debug(msg, fields...)
}

// UI logs to the ui category
func UI(msg string, fields ...zap.Field) {
	Get(CategoryUI).Info(msg, fields...)
}

// Server logs to the server category
func Server(msg string, fields ...zap.Field) {
	Get(CategoryServer).Info(msg, fields...)
}

// =============================================================================
// TIMING
// =============================================================================

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer starts timing an operation in the given category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("operation timed",
		zap.String("operation", t.operation),
		zap.Duration("elapsed", elapsed),
	)
	return elapsed
}
