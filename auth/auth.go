/*
Package auth provides teacher accounts and bearer-token authentication.

PURPOSE:
  A teacher registers with email and password, logs in, and receives a
  signed token. Every other API call carries that token; the middleware
  resolves it to the TeacherID that scopes all ledger reads and writes.

TOKENS:
  HS256 JWT, subject = teacher id, jti = random uuid, exp = now + TTL.

PASSWORDS:
  bcrypt hashes only. Login failures never reveal whether the email exists.

SEE ALSO:
  - tokens.go: signing and parsing
  - middleware.go: chi middleware and request context helpers
*/
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/warp/lesson-ledger/ledger"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type User struct {
	ID           ledger.TeacherID
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

// UserStore persists accounts.
type UserStore interface {
	// CreateTeacher stores the user and its initial settings together.
	// A taken email returns ledger.ErrEmailTaken.
	CreateTeacher(ctx context.Context, u User, settings ledger.TeacherSettings) error

	// GetUserByEmail returns a NotFoundError when no account matches.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

type Service struct {
	Users      UserStore
	Tokens     *Tokens
	Clock      ledger.Clock
	IDs        ledger.IDFunc
	BcryptCost int
}

func NewService(users UserStore, tokens *Tokens) *Service {
	return &Service{Users: users, Tokens: tokens, BcryptCost: bcrypt.DefaultCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a teacher account with default settings.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, ledger.Invalid("email", "must be a valid email address")
	}
	if len(password) < minPasswordLength {
		return User{}, ledger.Invalid("password", "must be at least 6 characters")
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return User{}, ledger.Invalid("full_name", "is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return User{}, err
	}

	now := s.Clock.Now()
	u := User{
		ID:           ledger.TeacherID(s.IDs.New()),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		CreatedAt:    now,
	}
	settings := ledger.DefaultSettings(u.ID, fullName)
	settings.UpdatedAt = now

	if err := s.Users.CreateTeacher(ctx, u, settings); err != nil {
		return User{}, err
	}
	return u, nil
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// Login checks the credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.Users.GetUserByEmail(ctx, normalizeEmail(email))
	if ledger.IsNotFound(err) {
		return Session{}, ledger.ErrUnauthorized
	}
	if err != nil {
		return Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Session{}, ledger.ErrUnauthorized
		}
		return Session{}, err
	}

	token, exp, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: *u}, nil
}
