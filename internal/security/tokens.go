package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed by another key.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSigningDisabled is returned by IssueAccess when no private key is configured.
	ErrSigningDisabled = errors.New("token signing disabled: no private key")
)

// AccessClaims holds JWT claims for a bearer access token. The subject is the user id;
// the token is only a pointer to a server-side session, which remains authoritative.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// TokenProvider issues and validates bearer access tokens signed with RS256 or ES256.
type TokenProvider struct {
	signer    crypto.Signer // nil for validate-only deployments
	publicKey crypto.PublicKey
	issuer    string
	audience  string
	accessTTL time.Duration
	parser    *jwt.Parser
}

// NewTokenProvider returns a TokenProvider. signer may be nil; then IssueAccess fails with
// ErrSigningDisabled and only validation is available.
func NewTokenProvider(signer crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		signer:    signer,
		publicKey: publicKey,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{KeyAlg(publicKey)}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// IssueAccess signs an access token for the session. Used by the seed command and tests;
// interactive login lives with the identity provider.
func (p *TokenProvider) IssueAccess(sessionID, userID string) (token string, expiresAt time.Time, err error) {
	if p.signer == nil {
		return "", time.Time{}, ErrSigningDisabled
	}
	jti, err := randomHex(16)
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}
	var method jwt.SigningMethod
	switch KeyAlg(p.signer.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidKey
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(p.signer)
	return token, expiresAt, err
}

// ValidateAccess checks signature, expiry, issuer and audience and returns the session and
// user ids carried by the token.
func (p *TokenProvider) ValidateAccess(tokenString string) (sessionID, userID string, err error) {
	claims := &AccessClaims{}
	token, err := p.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return p.publicKey, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.SessionID, claims.Subject, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
