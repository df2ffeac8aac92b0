package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yonathanth/Workline-backend/internal/security"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
	userdomain "github.com/yonathanth/Workline-backend/internal/user/domain"
)

// DefaultCookieName carries the opaque session token.
const DefaultCookieName = "workline.session_token"

// ErrMalformedCredential is returned for credentials that cannot belong to any session.
var ErrMalformedCredential = errors.New("malformed session credential")

// User is the identity projection exposed to handlers.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
}

// Resolved is a session together with its user.
type Resolved struct {
	Session *domain.Session
	User    User
}

// Provider looks up the session for request headers. It returns (nil, nil) when the request
// carries no credential or the credential matches no usable session.
type Provider interface {
	GetSession(ctx context.Context, headers http.Header) (*Resolved, error)
}

// SessionStore is the minimal session repository needed by StoreProvider.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
}

// UserStore is the minimal user repository needed by StoreProvider.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// AccessTokenValidator validates signed bearer tokens.
type AccessTokenValidator interface {
	ValidateAccess(token string) (sessionID, userID string, err error)
}

// StoreProvider resolves sessions from the session store. Credentials are, in order of
// precedence, an Authorization bearer value and the session cookie. Bearer values shaped
// like a JWT are validated with tokens and name the session id; anything else is an opaque
// session token looked up by hash.
type StoreProvider struct {
	sessions   SessionStore
	users      UserStore
	tokens     AccessTokenValidator // nil disables JWT bearer tokens
	cookieName string
	now        func() time.Time
}

// NewStoreProvider returns a StoreProvider. tokens may be nil; cookieName defaults to
// DefaultCookieName.
func NewStoreProvider(sessions SessionStore, users UserStore, tokens AccessTokenValidator, cookieName string) *StoreProvider {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &StoreProvider{
		sessions:   sessions,
		users:      users,
		tokens:     tokens,
		cookieName: cookieName,
		now:        time.Now,
	}
}

// GetSession implements Provider.
func (p *StoreProvider) GetSession(ctx context.Context, headers http.Header) (*Resolved, error) {
	sess, err := p.lookup(ctx, headers)
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.Active(p.now()) {
		return nil, nil
	}
	u, err := p.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	if u == nil || u.Status == userdomain.UserStatusDisabled {
		return nil, nil
	}
	return &Resolved{
		Session: sess,
		User: User{
			ID:            u.ID,
			Email:         u.Email,
			Name:          u.Name,
			EmailVerified: u.EmailVerified,
		},
	}, nil
}

func (p *StoreProvider) lookup(ctx context.Context, headers http.Header) (*domain.Session, error) {
	if auth := headers.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return nil, ErrMalformedCredential
		}
		if security.LooksLikeJWT(token) {
			return p.lookupJWT(ctx, token)
		}
		return p.lookupOpaque(ctx, token)
	}
	if token := cookieValue(headers, p.cookieName); token != "" {
		return p.lookupOpaque(ctx, token)
	}
	return nil, nil
}

func (p *StoreProvider) lookupJWT(ctx context.Context, token string) (*domain.Session, error) {
	if p.tokens == nil {
		return nil, fmt.Errorf("%w: bearer tokens are not accepted", ErrMalformedCredential)
	}
	sessionID, userID, err := p.tokens.ValidateAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	sess, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.UserID != userID {
		return nil, nil
	}
	return sess, nil
}

func (p *StoreProvider) lookupOpaque(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := p.sessions.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// cookieValue returns the named cookie from raw headers.
func cookieValue(headers http.Header, name string) string {
	r := http.Request{Header: headers}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
