package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yonathanth/Workline-backend/internal/audit/domain"
	auditrepo "github.com/yonathanth/Workline-backend/internal/audit/repository"
)

// SentinelOrgID is the org_id used for audit events that have no org (e.g. an active organization cleared).
const SentinelOrgID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Mirror receives a copy of every persisted event, e.g. an OpenTelemetry log exporter.
type Mirror interface {
	Emit(ctx context.Context, entry *domain.AuditLog)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	mirror      Mirror
	log         *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithMirror forwards each event to m after it is persisted.
func WithMirror(m Mirror) Option {
	return func(l *Logger) { l.mirror = m }
}

// WithSlog sets the logger used for write failures. Defaults to slog.Default().
func WithSlog(lg *slog.Logger) Option {
	return func(l *Logger) { l.log = lg }
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, opts ...Option) *Logger {
	l := &Logger{repo: repo, ipExtractor: ipExtractor, log: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.WarnContext(ctx, "audit: failed to log event",
			slog.String("action", action),
			slog.String("resource", resource),
			slog.String("org_id", orgID),
			slog.Any("error", err),
		)
		return
	}
	if l.mirror != nil {
		l.mirror.Emit(ctx, entry)
	}
}

// Meta encodes alternating key/value pairs as a JSON object for the metadata column.
// A trailing key without a value is dropped.
func Meta(kv ...string) string {
	if len(kv) < 2 {
		return ""
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
