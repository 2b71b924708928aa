package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/garnizeh/candidates/internal/auth"
	"github.com/garnizeh/candidates/internal/observability"
)

type ctxKey string

const (
	CtxSubject   ctxKey = "subject"
	CtxRequestID ctxKey = "request_id"
)

const headerRequestID = "X-Request-ID"

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// SubjectFromContext returns the authenticated token subject (the user email).
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(CtxSubject).(string)
	return s, ok && s != ""
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CtxRequestID).(string)
	return id
}

// RequestIDMiddleware propagates the caller's X-Request-ID or assigns a new one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CtxRequestID, id)))
	})
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.InfoContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote", r.RemoteAddr),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
	})
}

// CORSMiddleware allows the configured origins. "*" or an empty list allows any.
func CORSMiddleware(origins []string) mux.MiddlewareFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TrustedHostMiddleware rejects requests whose Host is not listed. Entries may
// be exact hosts or "*.domain" wildcards; an empty list or "*" accepts any host.
func TrustedHostMiddleware(hosts []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hostAllowed(hosts, r.Host) {
				logger.WarnContext(r.Context(), "untrusted host", slog.String("host", r.Host))
				writeJSON(w, errorBody{Detail: "Invalid host header"}, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostAllowed(hosts []string, hostport string) bool {
	if len(hosts) == 0 {
		return true
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	for _, pattern := range hosts {
		pattern = strings.ToLower(pattern)
		switch {
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "*."):
			if strings.HasSuffix(host, pattern[1:]) {
				return true
			}
		case pattern == host:
			return true
		}
	}
	return false
}

// RecoveryMiddleware turns a handler panic into a 500 and reports it to sink.
func RecoveryMiddleware(sink observability.Sink) mux.MiddlewareFunc {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					ctx := r.Context()
					err, ok := p.(error)
					if !ok {
						err = fmt.Errorf("panic: %v", p)
					}
					logger.ErrorContext(ctx, "panic",
						slog.Any("err", err),
						slog.String("path", r.URL.Path),
						slog.String("request_id", RequestIDFromContext(ctx)))
					sink.CaptureException(ctx, err, map[string]string{
						"status": strconv.Itoa(http.StatusInternalServerError),
						"method": r.Method,
						"path":   r.URL.Path,
						"panic":  "true",
					})
					writeJSON(w, errorBody{Detail: detailInternal}, http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// JWTAuthMiddleware requires a valid bearer token and stores its subject in
// the request context.
func JWTAuthMiddleware(tokens *auth.TokenService, sink observability.Sink) mux.MiddlewareFunc {
	ew := newErrorWriter(sink)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				ew.writeError(w, r, &APIError{Status: http.StatusUnauthorized, Detail: "Not authenticated", Err: auth.ErrInvalidToken})
				return
			}

			scheme, tokenString, _ := strings.Cut(authHeader, " ")
			tokenString = strings.TrimSpace(tokenString)
			if !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				ew.writeError(w, r, &APIError{
					Status: http.StatusUnauthorized,
					Detail: "Invalid authentication credentials",
					Err:    fmt.Errorf("%w: malformed authorization header", auth.ErrInvalidToken),
				})
				return
			}

			subject, err := tokens.Verify(tokenString)
			if err != nil {
				ew.writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), CtxSubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
