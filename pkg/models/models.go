package models

import "math"

// Domain models matching the database schema in db/migrations/0001_init.sql

type User struct {
	ID           int64   `json:"id" db:"id"`
	Email        string  `json:"email" db:"email"`
	PasswordHash string  `json:"-" db:"password_hash"`
	FullName     *string `json:"full_name,omitempty" db:"full_name"`
	Created      int64   `json:"created" db:"created"`
}

type Candidate struct {
	ID              int64   `json:"id" db:"id"`
	Name            string  `json:"name" db:"name"`
	Email           string  `json:"email" db:"email"`
	Phone           *string `json:"phone" db:"phone"`
	PositionApplied string  `json:"position_applied" db:"position_applied"`
}

// CandidateLog is an append-only audit row. CandidateEmail is a copy of the
// candidate email at creation time, not a reference.
type CandidateLog struct {
	ID             int64  `json:"id" db:"id"`
	CandidateEmail string `json:"candidate_email" db:"candidate_email"`
	Action         string `json:"action" db:"action"`
	Timestamp      int64  `json:"timestamp" db:"timestamp"`
}

// ActionCreated is the default CandidateLog action.
const ActionCreated = "Created"

// CandidateFilter selects one page of candidates. Page is 1-indexed.
type CandidateFilter struct {
	Search string
	Page   int
	Limit  int
}

// Offset returns the number of rows skipped before the page starts. It
// saturates at math.MaxInt instead of overflowing, so an out of range page is
// empty.
func (f CandidateFilter) Offset() int {
	if f.Page < 1 || f.Limit <= 0 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

type CandidatePage struct {
	Total      int64
	Page       int
	Limit      int
	Candidates []Candidate
}
