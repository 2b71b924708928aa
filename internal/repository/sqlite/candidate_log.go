package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/candidates/pkg/models"
)

func (r *SQLiteRepo) CreateCandidateLog(ctx context.Context, l *models.CandidateLog) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("candidate log is nil")
	}

	action := l.Action
	if action == "" {
		action = models.ActionCreated
	}
	ts := l.Timestamp
	if ts == 0 {
		ts = now()
	}

	var id int64
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO candidate_logs (candidate_email, action, timestamp) VALUES (?, ?, ?)`, l.CandidateEmail, action, ts)
		if err != nil {
			return fmt.Errorf("insert candidate log: %w", err)
		}

		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// ListCandidateLogs returns audit rows newest first. An empty email lists all.
func (r *SQLiteRepo) ListCandidateLogs(ctx context.Context, email string, limit, offset int) ([]models.CandidateLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.QueryRows(ctx, `SELECT id, candidate_email, action, timestamp FROM candidate_logs WHERE (? = '' OR candidate_email = ?) ORDER BY id DESC LIMIT ? OFFSET ?`, email, email, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.CandidateLog{}
	for rows.Next() {
		var l models.CandidateLog
		if err := rows.Scan(&l.ID, &l.CandidateEmail, &l.Action, &l.Timestamp); err != nil {
			return nil, err
		}

		out = append(out, l)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) CountCandidateLogs(ctx context.Context, email string) (int64, error) {
	var cnt int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM candidate_logs WHERE (? = '' OR candidate_email = ?)`, email, email).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}
