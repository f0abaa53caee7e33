package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketchat/internal/app/db"
	"marketchat/internal/app/user"
	"marketchat/internal/pkg/errs"
)

const userColumns = `id, email, password_hash, nickname, roles, status, created_at, last_login_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var status string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Nickname, &u.Roles, &status, &u.CreatedAt, &u.LastLoginAt)
	u.Status = user.Status(status)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, nickname, roles, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		u.Email, u.PasswordHash, u.Nickname, u.Roles, string(u.Status), u.CreatedAt)

	created, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return user.User{}, errs.NewError(errs.ErrUserAlreadyExists)
		}
		return user.User{}, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("insert user: %w", err))
	}
	return created, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.userWhere(ctx, "email = $1", email)
}

func (s *Store) UserByID(ctx context.Context, id int64) (user.User, error) {
	return s.userWhere(ctx, "id = $1", id)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return user.User{}, errs.NewError(errs.ErrUserNotFound)
		}
		return user.User{}, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("select user: %w", err))
	}
	return u, nil
}

func (s *Store) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	return err
}

// WithdrawUser anonymises the account and deactivates every membership in one transaction.
// The email is rewritten so the address can sign up again.
func (s *Store) WithdrawUser(ctx context.Context, id int64, nickname string, at time.Time) error {
	return s.inTx(ctx, func(tx *Store) error {
		tag, err := tx.db.Exec(ctx, `
			UPDATE users
			SET status = $2, nickname = $3, withdrawn_at = $4,
			    email = 'withdrawn+' || id || '@' || split_part(email, '@', 2)
			WHERE id = $1 AND status = $5`,
			id, string(user.StatusWithdrawn), nickname, at, string(user.StatusActive))
		if err != nil {
			return fmt.Errorf("withdraw user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.NewError(errs.ErrUserNotFound)
		}

		if _, err := tx.db.Exec(ctx, `
			UPDATE chat_room_members SET active = FALSE, left_at = $2
			WHERE user_id = $1 AND active`, id, at); err != nil {
			return fmt.Errorf("deactivate memberships: %w", err)
		}
		return nil
	})
}

// Nickname resolves the display name of a sender.
func (s *Store) Nickname(ctx context.Context, userID int64) (string, error) {
	var nickname string
	err := s.db.QueryRow(ctx, `SELECT nickname FROM users WHERE id = $1`, userID).Scan(&nickname)
	if err != nil {
		if db.IsNoRows(err) {
			return "", errs.NewError(errs.ErrUserNotFound)
		}
		return "", err
	}
	return nickname, nil
}
