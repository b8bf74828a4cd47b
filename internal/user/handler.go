package user

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"privchat/internal/metrics"
	"privchat/internal/middleware"
	"privchat/internal/ratelimit"
)

// Handler exposes signup, login and user search. Login attempts are gated
// per source IP; the window resets on a successful authentication.
type Handler struct {
	svc      *Service
	attempts *ratelimit.FailureWindow
	log      zerolog.Logger
}

func NewHandler(svc *Service, attempts *ratelimit.FailureWindow, log zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		attempts: attempts,
		log:      log.With().Str("component", "user_handler").Logger(),
	}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Signup(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Msg("signup failed")
			writeError(w, http.StatusInternalServerError, "could not create account")
		}
		return
	}

	h.log.Info().Str("userId", res.ID).Str("username", res.Username).Msg("account created")
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if h.attempts.Limited(ip) {
		metrics.RateLimited.WithLabelValues("auth").Inc()
		w.Header().Set("Retry-After", strconv.FormatInt(h.attempts.RetryAfter(ip), 10))
		writeError(w, http.StatusTooManyRequests, "too many failed login attempts")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.attempts.RecordFailure(ip)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "could not log in")
		return
	}

	h.attempts.Reset(ip)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.UserID(r.Context())
	prefix := r.URL.Query().Get("q")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	profiles, err := h.svc.Search(r.Context(), prefix, requesterID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("user search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
