package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudide/cloudide/internal/apierr"
	"github.com/cloudide/cloudide/internal/broker/authn"
	"github.com/cloudide/cloudide/internal/broker/store"
	"github.com/cloudide/cloudide/internal/httpx"
)

type ctxKey int

const ctxKeyUser ctxKey = 0

type authedUser struct {
	ID    string
	Email string
}

func userFromContext(ctx context.Context) authedUser {
	u, _ := ctx.Value(ctxKeyUser).(authedUser)
	return u
}

// requireAuth wraps next, rejecting requests with no valid session JWT and
// injecting the caller's identity into the request context otherwise.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			httpx.WriteError(w, apierr.Unauthorized, "missing bearer token")
			return
		}
		claims, err := s.issuer.VerifyToken(token)
		if err != nil {
			httpx.WriteError(w, apierr.Unauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUser, authedUser{ID: claims.Subject, Email: claims.Email})
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPublic struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  userPublic `json:"user"`
}

// handleRegister creates a new user and returns a session token. Per
// spec.md §4.1, password must be at least 8 characters and a duplicate
// email fails with CONFLICT.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		httpx.WriteError(w, apierr.InvalidPayload, "email is required and password must be at least 8 characters")
		return
	}

	if _, err := s.store.GetUserByEmail(req.Email); err == nil {
		httpx.WriteError(w, apierr.Conflict, "an account with this email already exists")
		return
	} else if err != store.ErrNotFound {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}

	hash, err := authn.HashPassword(req.Password)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}

	user := store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(user); err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}

	token, err := s.issuer.IssueToken(user.ID, user.Email)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authResponse{Token: token, User: userPublic{ID: user.ID, Email: user.Email}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin authenticates a user and returns a session token. Rate
// limited per source IP; any mismatch (unknown email or wrong password)
// returns a uniform INVALID_CREDENTIALS-shaped unauthorized response so
// the failure mode never leaks which part was wrong.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	if !s.loginLimit.Allow(clientIP(r)) {
		httpx.WriteError(w, apierr.RateLimited, "too many login attempts, try again later")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.WriteAPIErr(w, err)
		return
	}

	user, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		httpx.WriteError(w, apierr.Unauthorized, "invalid email or password")
		return
	}
	if !authn.CheckPassword(user.PasswordHash, req.Password) {
		httpx.WriteError(w, apierr.Unauthorized, "invalid email or password")
		return
	}

	token, err := s.issuer.IssueToken(user.ID, user.Email)
	if err != nil {
		httpx.WriteAPIErr(w, apierr.New(apierr.Internal, err.Error()))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authResponse{Token: token, User: userPublic{ID: user.ID, Email: user.Email}})
}

// handleMe returns the caller's public user record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, apierr.MethodNotAllowed, "method not allowed")
		return
	}
	u := userFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, userPublic{ID: u.ID, Email: u.Email})
}
