package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/candidates/api"
	dbfs "github.com/garnizeh/candidates/db"
	"github.com/garnizeh/candidates/internal/auth"
	"github.com/garnizeh/candidates/internal/config"
	"github.com/garnizeh/candidates/internal/db"
	"github.com/garnizeh/candidates/internal/jobs"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/internal/repository/sqlite"
	"github.com/garnizeh/candidates/pkg/repository"
	"github.com/garnizeh/candidates/pkg/repository/mock"
)

const testSecret = "test-secret-for-api"

type testEnv struct {
	router http.Handler
	sink   *observability.Recorder
	tokens *auth.TokenService
	hasher *auth.PasswordHasher
}

type stores struct {
	users      repository.UserRepo
	candidates repository.CandidateRepo
	logs       repository.CandidateLogRepo
	jobs       repository.JobRepo
}

func newEnv(t *testing.T, s stores) *testEnv {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret, "HS256", 30*time.Minute)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	env := &testEnv{
		sink:   &observability.Recorder{},
		tokens: tokens,
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
	}
	env.router = api.SetupRoutes(api.Deps{
		Config:     &config.Config{CORSOrigins: []string{"*"}},
		Version:    "test",
		BuildTime:  "now",
		Users:      s.users,
		Candidates: s.candidates,
		Logs:       s.logs,
		Jobs:       s.jobs,
		Queue:      jobs.NewQueue(s.jobs),
		Hasher:     env.hasher,
		Tokens:     tokens,
		Sink:       env.sink,
	})
	return env
}

// newSQLiteEnv wires the router to a fresh file-backed database.
func newSQLiteEnv(t *testing.T) (*testEnv, *sqlite.SQLiteRepo) {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, filepath.Join(t.TempDir(), "api.db"), nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := sqlite.New(d, nil)
	return newEnv(t, stores{users: repo, candidates: repo, logs: repo, jobs: repo}), repo
}

func newMockEnv(t *testing.T) (*testEnv, *mock.Mocks) {
	t.Helper()
	m := mock.NewMocks()
	return newEnv(t, stores{users: m.Users, candidates: m.Candidates, logs: m.Logs, jobs: m.Jobs}), m
}

func (e *testEnv) bearer(t *testing.T, subject string) string {
	t.Helper()
	tok, _, err := e.tokens.Issue(subject)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + tok
}

func (e *testEnv) do(method, path string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path, authz string, v any) *httptest.ResponseRecorder {
	var body io.Reader
	switch b := v.(type) {
	case nil:
	case string:
		body = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			panic(err)
		}
		body = strings.NewReader(string(raw))
	}
	h := http.Header{"Content-Type": {"application/json"}}
	if authz != "" {
		h.Set("Authorization", authz)
	}
	return e.do(method, path, body, h)
}

func (e *testEnv) doForm(path string, form url.Values) *httptest.ResponseRecorder {
	h := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	return e.do(http.MethodPost, path, strings.NewReader(form.Encode()), h)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type candidateJSON struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Phone           *string `json:"phone"`
	PositionApplied string  `json:"position_applied"`
}

type errorJSON struct {
	Detail string `json:"detail"`
	Errors []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}
