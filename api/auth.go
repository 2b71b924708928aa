package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/garnizeh/candidates/internal/auth"
	"github.com/garnizeh/candidates/internal/observability"
	"github.com/garnizeh/candidates/pkg/models"
	"github.com/garnizeh/candidates/pkg/repository"
)

const detailBadCredentials = "Incorrect username or password"

type AuthHandler struct {
	users  repository.UserRepo
	hasher *auth.PasswordHasher
	tokens *auth.TokenService
	sink   observability.Sink
	errs   errorWriter
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(users repository.UserRepo, hasher *auth.PasswordHasher, tokens *auth.TokenService, sink observability.Sink) *AuthHandler {
	ew := newErrorWriter(sink)
	return &AuthHandler{users: users, hasher: hasher, tokens: tokens, sink: ew.sink, errs: ew}
}

type createUserRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

func (c createUserRequest) validate() error {
	return checkEmail("email", c.Email)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateUser registers a new user. A repeated email is a 409.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, userSchema, &req); err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	_, err = h.users.CreateUser(ctx, &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			err = &APIError{Status: http.StatusConflict, Detail: "Email already registered", Err: err}
		}
		h.errs.writeError(w, r, err)
		return
	}

	logger.InfoContext(ctx, "user created", slog.String("email", req.Email))
	writeJSON(w, messageResponse{Message: "User created successfully"}, http.StatusOK)
}

// Token exchanges form-encoded username and password for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.errs.writeError(w, r, &ValidationError{Detail: "Invalid form body"})
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	var missing []FieldError
	if username == "" {
		missing = append(missing, FieldError{Field: "username", Message: "field required"})
	}
	if password == "" {
		missing = append(missing, FieldError{Field: "password", Message: "field required"})
	}
	if len(missing) > 0 {
		h.errs.writeError(w, r, &ValidationError{Fields: missing})
		return
	}

	ctx := r.Context()
	user, err := h.users.GetUserByEmail(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.errs.writeError(w, r, err)
		return
	}
	if user == nil || !h.hasher.Verify(password, user.PasswordHash) {
		logger.WarnContext(ctx, "failed login attempt", slog.String("username", username))
		h.sink.CaptureMessage(ctx, "Failed login attempt for user: "+username, observability.LevelWarning, map[string]string{
			"path": r.URL.Path,
		})
		writeJSON(w, errorBody{Detail: detailBadCredentials}, http.StatusBadRequest)
		return
	}

	token, _, err := h.tokens.Issue(user.Email)
	if err != nil {
		h.errs.writeError(w, r, err)
		return
	}

	writeJSON(w, tokenResponse{AccessToken: token, TokenType: "bearer"}, http.StatusOK)
}
