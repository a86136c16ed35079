package logging

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a user-visible lifecycle event.
type AuditEventType string

const (
	AuditLogin           AuditEventType = "login"
	AuditLogout          AuditEventType = "logout"
	AuditSessionRestored AuditEventType = "session_restored"
	AuditSessionExpired  AuditEventType = "session_expired"
	AuditConversationNew AuditEventType = "conversation_new"
	AuditExchange        AuditEventType = "exchange"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	EventType      AuditEventType
	Email          string
	ConversationID string
	RequestID      string
	Success        bool
	StatusCode     int
	DurationMs     int64
	Error          string
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditMu  sync.Mutex
	auditLog = zap.NewNop()
)

// InitAudit opens <logs>/<date>_audit.log as a JSON-lines sink.
// No-op when debug mode is off.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}
	dir := LogsDir()

	auditMu.Lock()
	defer auditMu.Unlock()

	path := filepath.Join(dir, fmt.Sprintf("%s_audit.log", time.Now().Format("2006-01-02")))

	zc := zap.NewProductionConfig()
	zc.Sampling = nil
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.MessageKey = "event"
	zc.EncoderConfig.LevelKey = zapcore.OmitKey
	zc.EncoderConfig.CallerKey = zapcore.OmitKey
	zc.EncoderConfig.EncodeTime = zapcore.EpochMillisTimeEncoder

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditLog = l
	return nil
}

// CloseAudit flushes the audit log and disables it.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	_ = auditLog.Sync()
	auditLog = zap.NewNop()
}

// Audit writes an audit event.
func Audit(e AuditEvent) {
	auditMu.Lock()
	l := auditLog
	auditMu.Unlock()

	fields := []zap.Field{zap.Bool("success", e.Success)}
	if e.Email != "" {
		fields = append(fields, zap.String("email", e.Email))
	}
	if e.ConversationID != "" {
		fields = append(fields, zap.String("conversation", e.ConversationID))
	}
	if e.RequestID != "" {
		fields = append(fields, zap.String("req", e.RequestID))
	}
	if e.StatusCode != 0 {
		fields = append(fields, zap.Int("status", e.StatusCode))
	}
	if e.DurationMs != 0 {
		fields = append(fields, zap.Int64("dur_ms", e.DurationMs))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	l.Info(string(e.EventType), fields...)
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// AuditSession records a login, logout, restore or expiry.
func AuditSession(t AuditEventType, email string) {
	Audit(AuditEvent{EventType: t, Email: email, Success: true})
}

// AuditExchangeDone records one finished backend exchange.
func AuditExchangeDone(requestID, conversationID string, status int, dur time.Duration, err error) {
	e := AuditEvent{
		EventType:      AuditExchange,
		RequestID:      requestID,
		ConversationID: conversationID,
		StatusCode:     status,
		DurationMs:     dur.Milliseconds(),
		Success:        err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	Audit(e)
}
