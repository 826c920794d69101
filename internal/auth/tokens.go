package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PurposeSession       = "session"
	PurposePasswordReset = "password_reset"

	issuer = "confras"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies organizer session and password-reset tokens with
// the process secret key.
type Tokens struct {
	secret        []byte
	sessionExpiry time.Duration
	resetExpiry   time.Duration
	now           func() time.Time
}

func NewTokens(secret string, sessionExpiry, resetExpiry time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &Tokens{
		secret:        []byte(secret),
		sessionExpiry: sessionExpiry,
		resetExpiry:   resetExpiry,
		now:           time.Now,
	}, nil
}

func (t *Tokens) SessionExpiry() time.Duration {
	return t.sessionExpiry
}

// IssueSession generates an admin token for a tenant organizer
func (t *Tokens) IssueSession(tenantID, email string) (string, error) {
	return t.issue(tenantID, email, PurposeSession, t.sessionExpiry)
}

// IssueReset generates a single-use password reset token
func (t *Tokens) IssueReset(tenantID, email string) (string, error) {
	return t.issue(tenantID, email, PurposePasswordReset, t.resetExpiry)
}

func (t *Tokens) issue(tenantID, email, purpose string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		TenantID: tenantID,
		Email:    email,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   tenantID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and checks it was issued for purpose.
func (t *Tokens) Validate(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: issued for %q", ErrInvalidToken, claims.Purpose)
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", ErrInvalidToken)
	}
	return claims, nil
}
