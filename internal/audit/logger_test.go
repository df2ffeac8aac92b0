package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/yonathanth/Workline-backend/internal/audit/domain"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

type mirrorCapture struct {
	entries []*domain.AuditLog
}

func (m *mirrorCapture) Emit(_ context.Context, e *domain.AuditLog) {
	m.entries = append(m.entries, e)
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	ipExtractor := func(ctx context.Context) string {
		return "192.168.1.1"
	}
	logger := NewLogger(repo, ipExtractor)

	logger.LogEvent(context.Background(), "org-1", "user-1", domain.ActionRoleChanged, domain.ResourceUser, `{"role":"admin"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.OrgID != "org-1" {
		t.Errorf("org_id = %q, want %q", entry.OrgID, "org-1")
	}
	if entry.UserID != "user-1" {
		t.Errorf("user_id = %q, want %q", entry.UserID, "user-1")
	}
	if entry.Action != domain.ActionRoleChanged {
		t.Errorf("action = %q, want %q", entry.Action, domain.ActionRoleChanged)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_LogEvent_NilIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "org-1", "user-1", "action", "resource", "")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want %q", repo.entries[0].IP, "unknown")
	}
}

func TestLogger_LogEvent_SentinelOrgID(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "", "user-1", "action", "resource", "")

	if repo.entries[0].OrgID != SentinelOrgID {
		t.Errorf("org_id = %q, want %q", repo.entries[0].OrgID, SentinelOrgID)
	}
}

func TestLogger_LogEvent_Mirror(t *testing.T) {
	repo := &mockAuditRepo{}
	mirror := &mirrorCapture{}
	logger := NewLogger(repo, nil, WithMirror(mirror))

	logger.LogEvent(context.Background(), "org-1", "user-1", "action", "resource", "")

	if len(mirror.entries) != 1 || mirror.entries[0] != repo.entries[0] {
		t.Fatalf("mirror got %d entries, want the persisted one", len(mirror.entries))
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	mirror := &mirrorCapture{}
	logger := NewLogger(repo, nil, WithMirror(mirror))

	// Best-effort: no panic, nothing mirrored.
	logger.LogEvent(context.Background(), "org-1", "user-1", "action", "resource", "")
	if len(mirror.entries) != 0 {
		t.Errorf("mirror should not receive failed writes, got %d", len(mirror.entries))
	}
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	logger := NewLogger(nil, nil)
	logger.LogEvent(context.Background(), "org-1", "user-1", "action", "resource", "")
}

func TestMeta(t *testing.T) {
	tests := []struct {
		name string
		kv   []string
		want string
	}{
		{"empty", nil, ""},
		{"single key", []string{"a"}, ""},
		{"pair", []string{"role", "admin"}, `{"role":"admin"}`},
		{"odd drops trailing", []string{"from", "u1", "to"}, `{"from":"u1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Meta(tt.kv...); got != tt.want {
				t.Errorf("Meta(%v) = %q, want %q", tt.kv, got, tt.want)
			}
		})
	}
}
