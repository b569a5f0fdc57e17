package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/warp/lesson-ledger/ledger"
)

const DefaultTokenTTL = 30 * 24 * time.Hour

// Tokens signs and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  ledger.Clock
}

func NewTokens(secret, issuer string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// WithClock pins the signing time. Used by tests.
func (t *Tokens) WithClock(c ledger.Clock) *Tokens {
	t.clock = c
	return t
}

func (t *Tokens) Issue(teacher ledger.TeacherID) (string, time.Time, error) {
	now := t.clock.Now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   string(teacher),
		ID:        uuid.NewString(),
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies signature, algorithm and expiry and returns the teacher.
// Every failure is ledger.ErrUnauthorized.
func (t *Tokens) Parse(token string) (ledger.TeacherID, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", ledger.ErrUnauthorized)
	}
	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return "", fmt.Errorf("%w: unexpected issuer", ledger.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ledger.ErrUnauthorized)
	}
	return ledger.TeacherID(claims.Subject), nil
}
