package audit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"backoffice/portal/internal/audit/domain"
	auditrepo "backoffice/portal/internal/audit/repository"
)

// SourceExtractor returns where the request came from (for the CLI, the host it runs on).
type SourceExtractor func(context.Context) string

// AuditLogger writes a single auth audit event.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo            auditrepo.Repository
	realm           string
	sourceExtractor SourceExtractor
	logger          *slog.Logger
}

// NewLogger returns an AuditLogger that persists realm events to repo. sourceExtractor may be nil;
// then the source is recorded as "unknown". A nil logger uses slog.Default().
func NewLogger(repo auditrepo.Repository, realm string, sourceExtractor SourceExtractor, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, realm: realm, sourceExtractor: sourceExtractor, logger: logger.With("subsystem", "audit")}
}

// HostnameSource records the local hostname as the source of every event.
func HostnameSource(context.Context) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	source := "unknown"
	if l.sourceExtractor != nil {
		source = l.sourceExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		Realm:     l.realm,
		UserID:    userID,
		Action:    action,
		Source:    source,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.WarnContext(ctx, "failed to log audit event", "action", action, "error", err)
	}
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) LogEvent(context.Context, string, string, string) {}
