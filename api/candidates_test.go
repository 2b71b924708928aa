package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/candidates/api"
	"github.com/garnizeh/candidates/internal/jobs"
	"github.com/garnizeh/candidates/pkg/repository/mock"
)

func candidateBody(name, email, phone, position string) map[string]any {
	b := map[string]any{"name": name, "email": email, "position_applied": position}
	if phone != "" {
		b["phone"] = phone
	}
	return b
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e, _ := newMockEnv(t)

	expired := expiredToken(t)
	tampered := tamperedToken(t, e)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/candidates"},
		{http.MethodPost, "/candidate/1"},
		{http.MethodGet, "/candidate/1"},
		{http.MethodPut, "/candidates/1"},
		{http.MethodDelete, "/candidates/1"},
		{http.MethodGet, "/candidate-logs"},
		{http.MethodGet, "/dead-letters"},
	}
	headers := map[string]string{
		"none":      "",
		"garbage":   "Bearer not.a.jwt",
		"no scheme": e.bearer(t, "alice@example.com")[len("Bearer "):],
		"basic":     "Basic YWxpY2U6czNjcmV0",
		"expired":   "Bearer " + expired,
		"tampered":  "Bearer " + tampered,
	}

	for _, rt := range routes {
		for name, h := range headers {
			t.Run(rt.method+" "+rt.path+" "+name, func(t *testing.T) {
				w := e.doJSON(rt.method, rt.path, h, candidateBody("A", "a@example.com", "", "Dev"))
				require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
				assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			})
		}
	}

	// every rejection is forwarded to the sink
	assert.Len(t, e.sink.Events(), len(routes)*len(headers))
}

func TestCandidateRoundTrip(t *testing.T) {
	e, _ := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	w := e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("Ada Lovelace", "ada@example.com", "555-0100", "Engineer"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[candidateJSON](t, w)
	require.NotZero(t, created.ID)

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		w = e.doJSON(method, fmt.Sprintf("/candidate/%d", created.ID), tok, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, created, decode[candidateJSON](t, w))
	}

	require.NotNil(t, created.Phone)
	assert.Equal(t, "Ada Lovelace", created.Name)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, "555-0100", *created.Phone)
	assert.Equal(t, "Engineer", created.PositionApplied)
}

func TestCreateCandidate_Validation(t *testing.T) {
	e, m := newMockEnv(t)
	tok := e.bearer(t, "alice@example.com")

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"MissingName", map[string]any{"email": "a@example.com", "position_applied": "Dev"}, "name"},
		{"MissingPosition", map[string]any{"name": "A", "email": "a@example.com"}, "position_applied"},
		{"BadEmail", map[string]any{"name": "A", "email": "nope", "position_applied": "Dev"}, "email"},
		{"PhoneNotString", map[string]any{"name": "A", "email": "a@example.com", "phone": 12, "position_applied": "Dev"}, "phone"},
		{"EmptyName", map[string]any{"name": "", "email": "a@example.com", "position_applied": "Dev"}, "name"},
		{"NotJSON", "{", ""},
		{"NotObject", `[1,2]`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := e.doJSON(http.MethodPost, "/candidates", tok, tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			if tc.field != "" {
				got := decode[errorJSON](t, w)
				var fields []string
				for _, fe := range got.Errors {
					fields = append(fields, fe.Field)
				}
				assert.Contains(t, fields, tc.field)
			}
		})
	}

	// nothing reached the store
	all, err := m.Candidates.ListAllCandidates(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, m.Jobs.Jobs())
}

func TestCreateCandidate_NullPhone(t *testing.T) {
	e, _ := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	w := e.doJSON(http.MethodPost, "/candidates", tok, map[string]any{"name": "A", "email": "a@example.com", "phone": nil, "position_applied": "Dev"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"phone":null`)
}

// Only the bare address is accepted, so one mailbox cannot be stored twice
// under different spellings.
func TestCandidateEmailSpellings(t *testing.T) {
	e, repo := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	require.Equal(t, http.StatusOK, e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("A", "dup@example.com", "", "Dev")).Code)

	for _, email := range []string{
		" dup@example.com",
		"dup@example.com ",
		"Dup <dup@example.com>",
		"<dup@example.com>",
		"a@b",
		"a@.example.com",
		"a@example.com.",
		"a@example..com",
	} {
		t.Run(email, func(t *testing.T) {
			w := e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("B", email, "", "Dev"))
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			body := decode[errorJSON](t, w)
			require.NotEmpty(t, body.Errors)
			assert.Equal(t, "email", body.Errors[0].Field)
		})
	}

	all, err := repo.ListAllCandidates(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	w := e.doJSON(http.MethodPut, fmt.Sprintf("/candidates/%d", all[0].ID), tok, candidateBody("A", "Dup <dup@example.com>", "", "Dev"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestCreateCandidate_DuplicateEmailIsConflict(t *testing.T) {
	e, _ := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	body := candidateBody("A", "dup@example.com", "", "Dev")
	require.Equal(t, http.StatusOK, e.doJSON(http.MethodPost, "/candidates", tok, body).Code)

	w := e.doJSON(http.MethodPost, "/candidates", tok, body)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "Candidate with this email already exists", decode[errorJSON](t, w).Detail)
}

func TestCreateCandidate_EnqueuesAuditLog(t *testing.T) {
	e, m := newMockEnv(t)
	tok := e.bearer(t, "alice@example.com")

	w := e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("A", "audit@example.com", "", "Dev"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	queued := m.Jobs.Jobs()
	require.Len(t, queued, 1)
	assert.Equal(t, jobs.TypeCandidateLog, queued[0].Type)
	assert.Equal(t, 1, queued[0].MaxAttempts)
	assert.JSONEq(t, `{"email":"audit@example.com"}`, string(queued[0].Payload))
}

func TestCreateCandidate_SucceedsWhenEnqueueFails(t *testing.T) {
	e, m := newMockEnv(t)
	m.Jobs.EnqueueErr = errors.New("queue unavailable")
	tok := e.bearer(t, "alice@example.com")

	w := e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("A", "a@example.com", "", "Dev"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	all, err := m.Candidates.ListAllCandidates(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	events := e.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "candidate_log", events[0].Tags["component"])
}

// The audit write runs in its own transaction on the worker; when it fails
// the candidate stays and the job ends in the dead letter table.
func TestCreateCandidate_SucceedsWhenAuditWriteFails(t *testing.T) {
	e, repo := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	failingLogs := mock.NewMocks().Logs
	failingLogs.CreateErr = errors.New("audit store down")
	pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{
		jobs.TypeCandidateLog: jobs.CandidateLogHandler(failingLogs, nil),
	}, nil, jobs.WithPollInterval(10*time.Millisecond))
	pool.Start(t.Context())
	t.Cleanup(pool.Stop)

	w := e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("A", "a@example.com", "", "Dev"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[candidateJSON](t, w)

	require.Eventually(t, func() bool {
		dl, err := repo.ListDeadLetters(t.Context(), 10)
		return err == nil && len(dl) == 1
	}, 3*time.Second, 10*time.Millisecond)

	got, err := repo.GetCandidate(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)

	n, err := repo.CountCandidateLogs(t.Context(), "")
	require.NoError(t, err)
	assert.Zero(t, n)

	w = e.doJSON(http.MethodGet, "/dead-letters", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[deadLettersJSON](t, w)
	require.Len(t, body.Items, 1)
	assert.Equal(t, jobs.TypeCandidateLog, body.Items[0].Type)
	assert.Contains(t, body.Items[0].LastError, "audit store down")
}

func TestCreateCandidate_AuditLogWrittenByWorker(t *testing.T) {
	e, repo := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{
		jobs.TypeCandidateLog: jobs.CandidateLogHandler(repo, nil),
	}, nil, jobs.WithPollInterval(10*time.Millisecond))
	pool.Start(t.Context())
	t.Cleanup(pool.Stop)

	require.Equal(t, http.StatusOK, e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("A", "logged@example.com", "", "Dev")).Code)

	require.Eventually(t, func() bool {
		n, err := repo.CountCandidateLogs(t.Context(), "logged@example.com")
		return err == nil && n == 1
	}, 3*time.Second, 10*time.Millisecond)

	w := e.doJSON(http.MethodGet, "/candidate-logs?email=logged@example.com", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Total int64 `json:"total"`
		Items []struct {
			CandidateEmail string `json:"candidate_email"`
			Action         string `json:"action"`
			Timestamp      int64  `json:"timestamp"`
		} `json:"items"`
	}](t, w)
	assert.EqualValues(t, 1, body.Total)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "Created", body.Items[0].Action)
	assert.NotZero(t, body.Items[0].Timestamp)
}

func TestCandidateNotFoundDetails(t *testing.T) {
	e, _ := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	tests := []struct {
		method string
		path   string
		body   any
		detail string
	}{
		{http.MethodPost, "/candidate/999", nil, "Candidate Not Found"},
		{http.MethodGet, "/candidate/999", nil, "Candidate Not Found"},
		{http.MethodPut, "/candidates/999", candidateBody("A", "a@example.com", "", "Dev"), "Candidate not found"},
		{http.MethodDelete, "/candidates/999", nil, "Candidate not found"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := e.doJSON(tc.method, tc.path, tok, tc.body)
			require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
			assert.Equal(t, tc.detail, decode[errorJSON](t, w).Detail)
		})
	}
}

func TestCandidateInvalidID(t *testing.T) {
	e, _ := newMockEnv(t)
	tok := e.bearer(t, "alice@example.com")

	w := e.doJSON(http.MethodPost, "/candidate/abc", tok, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "id", decode[errorJSON](t, w).Errors[0].Field)
}

func TestUpdateAndDeleteCandidate(t *testing.T) {
	e, _ := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")

	created := decode[candidateJSON](t, e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("Old", "old@example.com", "1", "Dev")))
	other := decode[candidateJSON](t, e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("Other", "other@example.com", "", "Dev")))

	path := fmt.Sprintf("/candidates/%d", created.ID)

	w := e.doJSON(http.MethodPut, path, tok, candidateBody("New", "new@example.com", "", "Lead"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[candidateJSON](t, w)
	assert.Equal(t, candidateJSON{ID: created.ID, Name: "New", Email: "new@example.com", PositionApplied: "Lead"}, updated)

	// full replace: the omitted phone is cleared
	w = e.doJSON(http.MethodGet, fmt.Sprintf("/candidate/%d", created.ID), tok, nil)
	assert.Nil(t, decode[candidateJSON](t, w).Phone)

	w = e.doJSON(http.MethodPut, path, tok, candidateBody("New", other.Email, "", "Lead"))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = e.doJSON(http.MethodPut, path, tok, map[string]any{"name": "New"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.doJSON(http.MethodDelete, path, tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Candidate deleted successfully", decode[map[string]string](t, w)["message"])

	w = e.doJSON(http.MethodDelete, path, tok, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCandidateMutationsLogSubject(t *testing.T) {
	var buf bytes.Buffer
	api.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { api.SetLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))) })

	e, _ := newMockEnv(t)
	tok := e.bearer(t, "recruiter@example.com")

	created := decode[candidateJSON](t, e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("A", "a@example.com", "", "Dev")))
	path := fmt.Sprintf("/candidates/%d", created.ID)
	require.Equal(t, http.StatusOK, e.doJSON(http.MethodPut, path, tok, candidateBody("B", "b@example.com", "", "Dev")).Code)
	require.Equal(t, http.StatusOK, e.doJSON(http.MethodDelete, path, tok, nil).Code)

	seen := map[string]string{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if msg, _ := entry["msg"].(string); strings.HasPrefix(msg, "candidate ") {
			seen[msg], _ = entry["subject"].(string)
		}
	}
	assert.Equal(t, map[string]string{
		"candidate created": "recruiter@example.com",
		"candidate updated": "recruiter@example.com",
		"candidate deleted": "recruiter@example.com",
	}, seen)
}

func TestCandidateStoreFailureIs500(t *testing.T) {
	e, m := newMockEnv(t)
	tok := e.bearer(t, "alice@example.com")
	m.Candidates.CreateErr = errors.New("constraint check failed: internal")

	w := e.doJSON(http.MethodPost, "/candidates", tok, candidateBody("A", "a@example.com", "", "Dev"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An unexpected error occurred.", decode[errorJSON](t, w).Detail)
	assert.Empty(t, m.Jobs.Jobs())
	require.Len(t, e.sink.Events(), 1)
	assert.Equal(t, "500", e.sink.Events()[0].Tags["status"])
}

func seedCandidates(t *testing.T, e *testEnv, n int) {
	t.Helper()
	tok := e.bearer(t, "seed@example.com")
	for i := 1; i <= n; i++ {
		w := e.doJSON(http.MethodPost, "/candidates", tok, candidateBody(
			fmt.Sprintf("Candidate %02d", i),
			fmt.Sprintf("c%02d@example.com", i),
			fmt.Sprintf("555-%04d", i),
			"Engineer",
		))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

type listJSON struct {
	Status          string          `json:"status"`
	TotalCandidates int64           `json:"total_candidates"`
	Page            int             `json:"page"`
	Limit           int             `json:"limit"`
	Candidates      []candidateJSON `json:"candidates"`
}

func TestListCandidates_Pagination(t *testing.T) {
	e, _ := newSQLiteEnv(t)
	seedCandidates(t, e, 25)

	w := e.doJSON(http.MethodGet, "/all-candidates?limit=10&page=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[listJSON](t, w)

	assert.Equal(t, "success", got.Status)
	assert.EqualValues(t, 25, got.TotalCandidates)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 10, got.Limit)
	require.Len(t, got.Candidates, 10)
	for i, c := range got.Candidates {
		assert.Equal(t, fmt.Sprintf("c%02d@example.com", 11+i), c.Email)
	}

	w = e.doJSON(http.MethodGet, "/all-candidates?limit=10&page=3", "", nil)
	assert.Len(t, decode[listJSON](t, w).Candidates, 5)

	w = e.doJSON(http.MethodGet, "/all-candidates?limit=10&page=9", "", nil)
	got = decode[listJSON](t, w)
	assert.NotNil(t, got.Candidates)
	assert.Empty(t, got.Candidates)
	assert.Contains(t, w.Body.String(), `"candidates":[]`)

	w = e.doJSON(http.MethodGet, "/all-candidates", "", nil)
	got = decode[listJSON](t, w)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 10, got.Limit)
	assert.Len(t, got.Candidates, 10)
}

func TestListCandidates_InvalidQuery(t *testing.T) {
	e, _ := newMockEnv(t)
	for _, q := range []string{"page=0", "page=-1", "page=x", "limit=0", "limit=101", "limit=ten", "page=1000000000000000000"} {
		t.Run(q, func(t *testing.T) {
			w := e.doJSON(http.MethodGet, "/all-candidates?"+q, "", nil)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
		})
	}
	w := e.doJSON(http.MethodGet, "/all-candidates?limit=100", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.doJSON(http.MethodGet, "/all-candidates?page=1000000000000000000&limit=1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "page*limit still fits")
	body := decode[errorJSON](t, e.doJSON(http.MethodGet, "/all-candidates?page=1000000000000000000", "", nil))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "page", body.Errors[0].Field)
}

func TestListCandidates_Search(t *testing.T) {
	e, _ := newSQLiteEnv(t)
	tok := e.bearer(t, "alice@example.com")
	for _, b := range []map[string]any{
		candidateBody("Grace Hopper", "grace@navy.mil", "555-1234", "Admiral"),
		candidateBody("Alan Turing", "alan@bletchley.uk", "", "Cryptanalyst"),
		candidateBody("Barbara Liskov", "liskov@mit.edu", "617-0000", "Professor"),
		candidateBody("Ken 100% Thompson", "ken@bell-labs.com", "", "Engineer_Unix"),
	} {
		require.Equal(t, http.StatusOK, e.doJSON(http.MethodPost, "/candidates", tok, b).Code)
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"grace", []string{"grace@navy.mil"}},
		{"GRACE", []string{"grace@navy.mil"}},
		{"TURING", []string{"alan@bletchley.uk"}},
		{"mit.edu", []string{"liskov@mit.edu"}},
		{"555-12", []string{"grace@navy.mil"}},
		{"crypt", []string{"alan@bletchley.uk"}},
		{"o", []string{"grace@navy.mil", "liskov@mit.edu", "ken@bell-labs.com"}},
		{"100%", []string{"ken@bell-labs.com"}},
		{"r_u", []string{"ken@bell-labs.com"}},
		{"%", []string{"ken@bell-labs.com"}},
		{"nobody", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.search, func(t *testing.T) {
			w := e.doJSON(http.MethodGet, "/all-candidates?search="+strings.ReplaceAll(tc.search, "%", "%25"), "", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			got := decode[listJSON](t, w)
			emails := []string{}
			for _, c := range got.Candidates {
				emails = append(emails, c.Email)
			}
			assert.Equal(t, tc.want, emails)
			assert.EqualValues(t, len(tc.want), got.TotalCandidates)
		})
	}
}

func TestListCandidateLogs_InvalidQuery(t *testing.T) {
	e, _ := newMockEnv(t)
	tok := e.bearer(t, "alice@example.com")
	for _, q := range []string{"limit=0", "limit=101", "offset=-1", "offset=x"} {
		w := e.doJSON(http.MethodGet, "/candidate-logs?"+q, tok, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, q)
	}

	w := e.doJSON(http.MethodGet, "/candidate-logs", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":0,"limit":50,"offset":0,"items":[]}`, w.Body.String())
}
