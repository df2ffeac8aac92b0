package resolver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/yonathanth/Workline-backend/internal/security"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
	userdomain "github.com/yonathanth/Workline-backend/internal/user/domain"
)

type mockSessionStore struct {
	byID   map[string]*domain.Session
	byHash map[string]*domain.Session
	err    error
}

func (m *mockSessionStore) GetByID(_ context.Context, id string) (*domain.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byID[id], nil
}

func (m *mockSessionStore) GetByTokenHash(_ context.Context, h string) (*domain.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byHash[h], nil
}

type mockUserStore struct {
	users map[string]*userdomain.User
	err   error
}

func (m *mockUserStore) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

const opaqueToken = "opaque-token-value"

type fixture struct {
	provider *StoreProvider
	sessions *mockSessionStore
	users    *mockUserStore
	tokens   *security.TokenProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	sess := &domain.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		TokenHash: security.HashToken(opaqueToken),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	sessions := &mockSessionStore{
		byID:   map[string]*domain.Session{sess.ID: sess},
		byHash: map[string]*domain.Session{sess.TokenHash: sess},
	}
	users := &mockUserStore{users: map[string]*userdomain.User{
		"user-1": {ID: "user-1", Email: "alice@example.com", Name: "Alice", EmailVerified: true, Status: userdomain.UserStatusActive},
	}}
	return &fixture{
		provider: NewStoreProvider(sessions, users, tokens, ""),
		sessions: sessions,
		users:    users,
		tokens:   tokens,
	}
}

func cookieHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Cookie", DefaultCookieName+"="+token)
	return h
}

func bearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestStoreProvider_Credentials(t *testing.T) {
	f := newFixture(t)
	jwt, _, err := f.tokens.IssueAccess("sess-1", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		headers http.Header
	}{
		{"cookie", cookieHeader(opaqueToken)},
		{"opaque bearer", bearerHeader(opaqueToken)},
		{"jwt bearer", bearerHeader(jwt)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.provider.GetSession(context.Background(), tt.headers)
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if res == nil {
				t.Fatal("expected a session")
			}
			if res.Session.ID != "sess-1" {
				t.Errorf("session = %s, want sess-1", res.Session.ID)
			}
			want := User{ID: "user-1", Email: "alice@example.com", Name: "Alice", EmailVerified: true}
			if res.User != want {
				t.Errorf("user = %+v, want %+v", res.User, want)
			}
		})
	}
}

func TestStoreProvider_NoSession(t *testing.T) {
	f := newFixture(t)
	expired := &domain.Session{ID: "sess-2", UserID: "user-1", TokenHash: security.HashToken("old"), ExpiresAt: time.Now().Add(-time.Hour)}
	f.sessions.byHash[expired.TokenHash] = expired
	disabled := &domain.Session{ID: "sess-3", UserID: "user-2", TokenHash: security.HashToken("disabled"), ExpiresAt: time.Now().Add(time.Hour)}
	f.sessions.byHash[disabled.TokenHash] = disabled
	f.users.users["user-2"] = &userdomain.User{ID: "user-2", Status: userdomain.UserStatusDisabled}
	otherUserJWT, _, err := f.tokens.IssueAccess("sess-1", "user-9")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		headers http.Header
	}{
		{"no credential", http.Header{}},
		{"unknown token", cookieHeader("nope")},
		{"expired", cookieHeader("old")},
		{"disabled user", cookieHeader("disabled")},
		{"jwt for another user", bearerHeader(otherUserJWT)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.provider.GetSession(context.Background(), tt.headers)
			if err != nil || res != nil {
				t.Fatalf("got (%v, %v), want (nil, nil)", res, err)
			}
		})
	}
}

func TestStoreProvider_Errors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		headers http.Header
		setup   func()
		wantErr error
	}{
		{"basic auth", http.Header{"Authorization": {"Basic abc"}}, nil, ErrMalformedCredential},
		{"empty bearer", http.Header{"Authorization": {"Bearer "}}, nil, ErrMalformedCredential},
		{"forged jwt", bearerHeader("aaa.bbb.ccc"), nil, ErrMalformedCredential},
		{"store down", cookieHeader(opaqueToken), func() { f.sessions.err = errors.New("db down") }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			res, err := f.provider.GetSession(context.Background(), tt.headers)
			if err == nil || res != nil {
				t.Fatalf("got (%v, %v), want error", res, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoreProvider_JWTDisabled(t *testing.T) {
	f := newFixture(t)
	p := NewStoreProvider(f.sessions, f.users, nil, "")
	jwt, _, _ := f.tokens.IssueAccess("sess-1", "user-1")
	if _, err := p.GetSession(context.Background(), bearerHeader(jwt)); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("err = %v, want ErrMalformedCredential", err)
	}
}

func TestStoreProvider_CustomCookieName(t *testing.T) {
	f := newFixture(t)
	p := NewStoreProvider(f.sessions, f.users, nil, "sid")
	h := http.Header{}
	h.Set("Cookie", "sid="+opaqueToken)
	res, err := p.GetSession(context.Background(), h)
	if err != nil || res == nil {
		t.Fatalf("got (%v, %v)", res, err)
	}
}
