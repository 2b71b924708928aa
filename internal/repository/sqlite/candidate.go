package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/garnizeh/candidates/pkg/models"
	"github.com/garnizeh/candidates/pkg/repository"
)

const candidateColumns = `id, name, email, phone, position_applied`

// searchClause matches the needle case-insensitively against every text
// column. The needle must be lowered with strings.ToLower so both sides fold
// the same way.
const searchClause = ` WHERE ulower(name) LIKE ? ESCAPE '\'` +
	` OR ulower(email) LIKE ? ESCAPE '\'` +
	` OR ulower(COALESCE(phone, '')) LIKE ? ESCAPE '\'` +
	` OR ulower(position_applied) LIKE ? ESCAPE '\'`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var c models.Candidate
	var phone sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &phone, &c.PositionApplied); err != nil {
		return nil, err
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	return &c, nil
}

func (r *SQLiteRepo) CreateCandidate(ctx context.Context, c *models.Candidate) (*models.Candidate, error) {
	if c == nil {
		return nil, fmt.Errorf("candidate is nil")
	}

	out := *c
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO candidates (name, email, phone, position_applied) VALUES (?, ?, ?, ?)`, c.Name, c.Email, c.Phone, c.PositionApplied)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("candidate %q: %w", c.Email, repository.ErrConflict)
			}
			return fmt.Errorf("insert candidate: %w", err)
		}

		out.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (r *SQLiteRepo) GetCandidate(ctx context.Context, id int64) (*models.Candidate, error) {
	c, err := scanCandidate(r.conn.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get candidate %d: %w", id, err)
	}

	return c, nil
}

// ListCandidates returns one page of candidates ordered by id. The count and
// the page are read in the same transaction so they agree with each other.
func (r *SQLiteRepo) ListCandidates(ctx context.Context, f models.CandidateFilter) (*models.CandidatePage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 10
	}

	var where string
	var args []any
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		where = searchClause
		args = append(args, pattern, pattern, pattern, pattern)
	}

	page := &models.CandidatePage{Page: f.Page, Limit: f.Limit, Candidates: []models.Candidate{}}
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates`+where, args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count candidates: %w", err)
		}

		pageArgs := append(append([]any{}, args...), f.Limit, f.Offset())
		rows, err := tx.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates`+where+` ORDER BY id ASC LIMIT ? OFFSET ?`, pageArgs...)
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCandidate(rows)
			if err != nil {
				return err
			}
			page.Candidates = append(page.Candidates, *c)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

func (r *SQLiteRepo) ListAllCandidates(ctx context.Context) ([]models.Candidate, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all candidates: %w", err)
	}
	defer rows.Close()

	out := []models.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *c)
	}

	return out, rows.Err()
}

// UpdateCandidate replaces every mutable field of the candidate with id.
func (r *SQLiteRepo) UpdateCandidate(ctx context.Context, id int64, c *models.Candidate) (*models.Candidate, error) {
	if c == nil {
		return nil, fmt.Errorf("candidate is nil")
	}

	var out *models.Candidate
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := scanCandidate(tx.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("load candidate %d: %w", id, err)
		}

		current.Name = c.Name
		current.Email = c.Email
		current.Phone = c.Phone
		current.PositionApplied = c.PositionApplied

		_, err = tx.ExecContext(ctx, `UPDATE candidates SET name = ?, email = ?, phone = ?, position_applied = ? WHERE id = ?`, current.Name, current.Email, current.Phone, current.PositionApplied, id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("candidate %q: %w", c.Email, repository.ErrConflict)
			}
			return fmt.Errorf("update candidate %d: %w", id, err)
		}

		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *SQLiteRepo) DeleteCandidate(ctx context.Context, id int64) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete candidate %d: %w", id, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}
