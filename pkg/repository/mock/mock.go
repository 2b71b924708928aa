package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	imodels "github.com/garnizeh/candidates/internal/models"
	"github.com/garnizeh/candidates/pkg/models"
	"github.com/garnizeh/candidates/pkg/repository"
)

// Test helpers and mocks. Each repo keeps rows in memory and returns the
// configured *Err field, when set, instead of touching its state.
type Mocks struct {
	Users      *UserRepo
	Candidates *CandidateRepo
	Logs       *CandidateLogRepo
	Jobs       *JobRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		Users:      &UserRepo{byID: map[int64]*models.User{}},
		Candidates: &CandidateRepo{byID: map[int64]*models.Candidate{}},
		Logs:       &CandidateLogRepo{},
		Jobs:       &JobRepo{},
	}
}

type UserRepo struct {
	mu        sync.Mutex
	byID      map[int64]*models.User
	nextID    int64
	CreateErr error
	GetErr    error
}

func (m *UserRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return 0, repository.ErrConflict
		}
	}
	m.nextID++
	stored := *u
	stored.ID = m.nextID
	stored.Created = time.Now().Unix()
	m.byID[stored.ID] = &stored
	return stored.ID, nil
}

func (m *UserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, u := range m.byID {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

type CandidateRepo struct {
	mu        sync.Mutex
	byID      map[int64]*models.Candidate
	nextID    int64
	CreateErr error
	ReadErr   error
	UpdateErr error
	DeleteErr error
}

func (m *CandidateRepo) CreateCandidate(ctx context.Context, c *models.Candidate) (*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	for _, existing := range m.byID {
		if existing.Email == c.Email {
			return nil, repository.ErrConflict
		}
	}
	m.nextID++
	stored := *c
	stored.ID = m.nextID
	m.byID[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *CandidateRepo) GetCandidate(ctx context.Context, id int64) (*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *CandidateRepo) ListCandidates(ctx context.Context, f models.CandidateFilter) (*models.CandidatePage, error) {
	all, err := m.ListAllCandidates(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(f.Search)
	matched := make([]models.Candidate, 0, len(all))
	for _, c := range all {
		phone := ""
		if c.Phone != nil {
			phone = *c.Phone
		}
		hay := strings.ToLower(strings.Join([]string{c.Name, c.Email, phone, c.PositionApplied}, "\x00"))
		if needle == "" || strings.Contains(hay, needle) {
			matched = append(matched, c)
		}
	}

	page := &models.CandidatePage{Total: int64(len(matched)), Page: f.Page, Limit: f.Limit, Candidates: []models.Candidate{}}
	start := f.Offset()
	if start < len(matched) {
		end := min(start+f.Limit, len(matched))
		page.Candidates = append(page.Candidates, matched[start:end]...)
	}
	return page, nil
}

func (m *CandidateRepo) ListAllCandidates(ctx context.Context) ([]models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	out := make([]models.Candidate, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *CandidateRepo) UpdateCandidate(ctx context.Context, id int64, c *models.Candidate) (*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	if _, ok := m.byID[id]; !ok {
		return nil, repository.ErrNotFound
	}
	for otherID, existing := range m.byID {
		if otherID != id && existing.Email == c.Email {
			return nil, repository.ErrConflict
		}
	}
	stored := *c
	stored.ID = id
	m.byID[id] = &stored
	out := stored
	return &out, nil
}

func (m *CandidateRepo) DeleteCandidate(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type CandidateLogRepo struct {
	mu        sync.Mutex
	Stored    []models.CandidateLog
	CreateErr error
	ListErr   error
}

func (m *CandidateLogRepo) CreateCandidateLog(ctx context.Context, l *models.CandidateLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	stored := *l
	stored.ID = int64(len(m.Stored) + 1)
	if stored.Action == "" {
		stored.Action = models.ActionCreated
	}
	if stored.Timestamp == 0 {
		stored.Timestamp = time.Now().Unix()
	}
	m.Stored = append(m.Stored, stored)
	return stored.ID, nil
}

func (m *CandidateLogRepo) ListCandidateLogs(ctx context.Context, email string, limit, offset int) ([]models.CandidateLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []models.CandidateLog{}
	for _, l := range m.filtered(email) {
		if offset > 0 {
			offset--
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *CandidateLogRepo) CountCandidateLogs(ctx context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return 0, m.ListErr
	}
	return int64(len(m.filtered(email))), nil
}

func (m *CandidateLogRepo) filtered(email string) []models.CandidateLog {
	var out []models.CandidateLog
	for _, l := range m.Stored {
		if email == "" || l.CandidateEmail == email {
			out = append(out, l)
		}
	}
	return out
}

// JobRepo records enqueued jobs without running them.
type JobRepo struct {
	mu          sync.Mutex
	Enqueued    []imodels.BackgroundJob
	DeadLetters []imodels.DeadLetterJob
	EnqueueErr  error
	ListErr     error
}

func (m *JobRepo) Enqueue(ctx context.Context, j *imodels.BackgroundJob) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return 0, m.EnqueueErr
	}
	stored := *j
	stored.ID = int64(len(m.Enqueued) + 1)
	stored.Status = imodels.JobQueued
	m.Enqueued = append(m.Enqueued, stored)
	return stored.ID, nil
}

func (m *JobRepo) FetchNext(ctx context.Context) (*imodels.BackgroundJob, error) { return nil, nil }

func (m *JobRepo) UpdateJob(ctx context.Context, j *imodels.BackgroundJob) error { return nil }

func (m *JobRepo) MoveToDeadLetter(ctx context.Context, j *imodels.BackgroundJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeadLetters = append(m.DeadLetters, imodels.DeadLetterJob{
		ID:        int64(len(m.DeadLetters) + 1),
		JobID:     j.ID,
		Type:      j.Type,
		Payload:   j.Payload,
		Attempts:  j.Attempts,
		LastError: j.LastError,
		FailedAt:  time.Now(),
	})
	return nil
}

func (m *JobRepo) RequeueStale(ctx context.Context, olderThanUnix int64) (int64, error) {
	return 0, nil
}

// ListDeadLetters returns up to limit dead letters, newest first.
func (m *JobRepo) ListDeadLetters(ctx context.Context, limit int) ([]imodels.DeadLetterJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []imodels.DeadLetterJob
	for i := len(m.DeadLetters) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.DeadLetters[i])
	}
	return out, nil
}

// Jobs returns a copy of the enqueued jobs.
func (m *JobRepo) Jobs() []imodels.BackgroundJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]imodels.BackgroundJob, len(m.Enqueued))
	copy(out, m.Enqueued)
	return out
}

var (
	_ repository.UserRepo         = (*UserRepo)(nil)
	_ repository.CandidateRepo    = (*CandidateRepo)(nil)
	_ repository.CandidateLogRepo = (*CandidateLogRepo)(nil)
	_ repository.JobRepo          = (*JobRepo)(nil)
)
