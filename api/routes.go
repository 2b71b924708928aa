package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/candidates/internal/auth"
	"github.com/garnizeh/candidates/internal/config"
	"github.com/garnizeh/candidates/internal/jobs"
	"github.com/garnizeh/candidates/internal/metrics"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/pkg/repository"
)

// Deps are the collaborators the HTTP layer needs. They are built in main and
// injected here.
type Deps struct {
	Config    *config.Config
	Version   string
	BuildTime string

	Users      repository.UserRepo
	Candidates repository.CandidateRepo
	Logs       repository.CandidateLogRepo
	Jobs       repository.JobRepo
	Queue      jobs.Enqueuer

	Hasher *auth.PasswordHasher
	Tokens *auth.TokenService

	Sink observability.Sink
	// SentryMiddleware attaches a Sentry hub to each request. Optional.
	SentryMiddleware func(http.Handler) http.Handler
}

func SetupRoutes(d Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain. The Sentry hub goes first so recovery reports
	// panics on the request hub.
	if d.SentryMiddleware != nil {
		r.Use(mux.MiddlewareFunc(d.SentryMiddleware))
	}
	r.Use(RecoveryMiddleware(d.Sink))
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(metrics.InstrumentHandler)
	r.Use(TrustedHostMiddleware(d.Config.AllowedHosts))
	r.Use(CORSMiddleware(d.Config.CORSOrigins))

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(d.Users, d.Hasher, d.Tokens, d.Sink)
	candidatesHandler := NewCandidatesHandler(d.Candidates, d.Logs, d.Queue, d.Sink)
	jobsHandler := NewJobsHandler(d.Jobs, d.Sink)

	// Open endpoints
	r.HandleFunc("/", systemHandler.RootHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/users", authHandler.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/token", authHandler.Token).Methods(http.MethodPost)
	r.HandleFunc("/all-candidates", candidatesHandler.ListCandidates).Methods(http.MethodGet)
	r.HandleFunc("/generate-report", candidatesHandler.GenerateReport).Methods(http.MethodGet)

	// Protected routes
	protected := r.NewRoute().Subrouter()
	protected.Use(JWTAuthMiddleware(d.Tokens, d.Sink))

	protected.HandleFunc("/candidates", candidatesHandler.CreateCandidate).Methods(http.MethodPost)
	protected.HandleFunc("/candidate/{id}", candidatesHandler.GetCandidate).Methods(http.MethodPost, http.MethodGet)
	protected.HandleFunc("/candidates/{id}", candidatesHandler.UpdateCandidate).Methods(http.MethodPut)
	protected.HandleFunc("/candidates/{id}", candidatesHandler.DeleteCandidate).Methods(http.MethodDelete)
	protected.HandleFunc("/candidate-logs", candidatesHandler.ListCandidateLogs).Methods(http.MethodGet)
	protected.HandleFunc("/dead-letters", jobsHandler.ListDeadLetters).Methods(http.MethodGet)

	// CORS preflight for every path
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
