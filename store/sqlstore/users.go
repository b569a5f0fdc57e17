package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/lesson-ledger/auth"
	"github.com/warp/lesson-ledger/ledger"
)

// =============================================================================
// USERS (auth.UserStore interface)
// =============================================================================

// CreateTeacher inserts the account and its default settings in one transaction.
func (s *Store) CreateTeacher(ctx context.Context, u auth.User, settings ledger.TeacherSettings) error {
	return s.WithTx(ctx, u.ID, func(tx ledger.Store) error {
		q := tx.(*queries)
		_, err := q.exec(ctx, `
			INSERT INTO users (id, email, password_hash, full_name, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			u.ID, u.Email, u.PasswordHash, u.FullName, formatTime(u.CreatedAt),
		)
		if isUniqueConstraintError(err) {
			return ledger.ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return q.UpsertSettings(ctx, u.ID, settings)
	})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	var (
		u         auth.User
		createdAt string
	)
	err := s.queryRow(ctx, `
		SELECT id, email, password_hash, full_name, created_at
		FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

var _ auth.UserStore = (*Store)(nil)
