package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "github.com/yonathanth/Workline-backend/internal/audit/domain"
)

// auditScope is the instrumentation scope of audit log records.
const auditScope = "workline.audit"

// recordEmitter is the part of otellog.Logger the mirror uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// AuditMirror copies persisted audit events to OpenTelemetry log records.
type AuditMirror struct {
	logger recordEmitter
}

// NewAuditMirror returns a mirror that emits through provider. A nil provider yields a nil mirror,
// whose Emit is a no-op.
func NewAuditMirror(provider *sdklog.LoggerProvider) *AuditMirror {
	if provider == nil {
		return nil
	}
	return &AuditMirror{logger: provider.Logger(auditScope)}
}

func newAuditMirrorWithEmitter(e recordEmitter) *AuditMirror {
	return &AuditMirror{logger: e}
}

// Emit converts entry to a log record. Empty fields are omitted.
func (m *AuditMirror) Emit(ctx context.Context, entry *auditdomain.AuditLog) {
	if m == nil || entry == nil {
		return
	}
	var rec otellog.Record
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName(entry.Action)
	if entry.Metadata != "" {
		rec.SetBody(otellog.StringValue(entry.Metadata))
	}
	for _, kv := range []struct{ key, value string }{
		{"audit.id", entry.ID},
		{"org_id", entry.OrgID},
		{"user_id", entry.UserID},
		{"action", entry.Action},
		{"resource", entry.Resource},
		{"client.address", entry.IP},
	} {
		if kv.value != "" {
			rec.AddAttributes(otellog.String(kv.key, kv.value))
		}
	}
	m.logger.Emit(ctx, rec)
}
