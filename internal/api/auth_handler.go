package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/metrics"
	"github.com/alecgard/teamhub/internal/ratelimit"
	"github.com/alecgard/teamhub/internal/user"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	users   *user.Service
	limiter *loginRateLimiter
	metrics *metrics.Metrics
}

func newAuthHandler(users *user.Service, limiter *loginRateLimiter, m *metrics.Metrics) *authHandler {
	return &authHandler{users: users, limiter: limiter, metrics: m}
}

func (h *authHandler) countAuth(ok bool) {
	if h.metrics == nil {
		return
	}
	if ok {
		h.metrics.IncAuthSuccess("password")
	} else {
		h.metrics.IncAuthFailure("password")
	}
}

// Register handles POST /api/v1/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req user.CreateUserInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "register", err)
		return
	}

	auditLog(r, "user.register", "user", u.ID)
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		if ok, retry := h.limiter.allow(ratelimit.ClientIP(r)); !ok {
			if h.metrics != nil {
				h.metrics.IncRateLimitRejection("login")
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts, try again later")
			return
		}
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	token, u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.countAuth(false)
		if errors.Is(err, user.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		writeServiceError(w, r, "login", err)
		return
	}
	h.countAuth(true)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  u,
	})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	u, err := h.users.Get(r.Context(), caller.ID)
	if err != nil {
		writeServiceError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateMe handles PATCH /api/v1/auth/me.
func (h *authHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var input user.UpdateUserInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), caller.ID, input)
	if err != nil {
		writeServiceError(w, r, "update profile", err)
		return
	}
	auditLog(r, "user.update_self", "user", u.ID)
	writeJSON(w, http.StatusOK, u)
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_ = h.users.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}
