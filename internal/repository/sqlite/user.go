package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/candidates/pkg/models"
	"github.com/garnizeh/candidates/pkg/repository"
)

const userColumns = `id, email, password_hash, full_name, created`

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}

	var id int64
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO users (email, password_hash, full_name, created) VALUES (?, ?, ?, ?)`, u.Email, u.PasswordHash, u.FullName, now())
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("user %q: %w", u.Email, repository.ErrConflict)
			}
			return fmt.Errorf("insert user: %w", err)
		}

		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepo) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var fullName sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &fullName, &u.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}

		return nil, err
	}

	if fullName.Valid {
		u.FullName = &fullName.String
	}

	return &u, nil
}
