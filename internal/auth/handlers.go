package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	apperrors "github.com/openblog/backend/internal/errors"
	"github.com/openblog/backend/internal/logger"
)

type SignupRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type MessageResponse struct {
	Msg string `json:"msg"`
}

// EventCounter receives named auth events (logins, refreshes, failures).
type EventCounter interface {
	IncCounter(name string)
}

type Handlers struct {
	authService *Service
	events      EventCounter
	log         *logger.Logger
}

func NewHandlers(authService *Service, events EventCounter, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{
		authService: authService,
		events:      events,
		log:         log.WithComponent("auth"),
	}
}

func (h *Handlers) count(name string) {
	if h.events != nil {
		h.events.IncCounter(name)
	}
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) error {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	if err := validateSignupRequest(&req); err != nil {
		return err
	}

	err := h.authService.Signup(r.Context(), req.Name, req.Username, req.Password)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return apperrors.UsernameTaken()
	case errors.Is(err, ErrPasswordTooLong):
		return apperrors.ValidationError("password", "password must be at most 72 bytes")
	case err != nil:
		return apperrors.InternalError("failed to create user").WithCause(err)
	}

	h.count("auth_signups_total")
	h.log.Info(r.Context(), "user signed up", map[string]any{"username": req.Username})
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MessageResponse{Msg: "signup successful"})
	return nil
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	if strings.TrimSpace(req.Username) == "" {
		return apperrors.MissingField("username")
	}
	if req.Password == "" {
		return apperrors.MissingField("password")
	}

	resp, err := h.authService.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrUnknownUsername):
		h.count("auth_login_failures_total")
		return apperrors.UnknownUsername()
	case errors.Is(err, ErrWrongPassword):
		h.count("auth_login_failures_total")
		return apperrors.WrongPassword()
	case err != nil:
		return apperrors.InternalError("login failed").WithCause(err)
	}

	h.count("auth_logins_total")
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, resp)
	return nil
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) error {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	if req.RefreshToken == "" {
		return apperrors.MissingField("refreshToken")
	}

	resp, err := h.authService.Refresh(r.Context(), stripBearer(req.RefreshToken))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			h.count("auth_refresh_failures_total")
			return apperrors.InvalidRefreshToken()
		}
		return apperrors.InternalError("token refresh failed").WithCause(err)
	}

	h.count("auth_refreshes_total")
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, resp)
	return nil
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) error {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	if req.RefreshToken == "" {
		return apperrors.MissingField("refreshToken")
	}

	if err := h.authService.Logout(r.Context(), stripBearer(req.RefreshToken)); err != nil {
		return apperrors.InternalError("logout failed").WithCause(err)
	}

	h.count("auth_logouts_total")
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MessageResponse{Msg: "logout successful"})
	return nil
}

// stripBearer accepts refresh tokens sent in their stored "Bearer <token>" form.
func stripBearer(token string) string {
	if t, ok := BearerToken(token); ok {
		return t
	}
	return strings.TrimSpace(token)
}

// MaxNameLength bounds name and username in characters, matching the users table.
const MaxNameLength = 255

func tooLong(v string) bool {
	return utf8.RuneCountInString(v) > MaxNameLength
}

func validateSignupRequest(req *SignupRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.MissingField("name")
	}
	if strings.TrimSpace(req.Username) == "" {
		return apperrors.MissingField("username")
	}
	if tooLong(req.Name) {
		return apperrors.ValidationError("name", fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	if tooLong(req.Username) {
		return apperrors.ValidationError("username", fmt.Sprintf("username must be at most %d characters", MaxNameLength))
	}
	if req.Password == "" {
		return apperrors.MissingField("password")
	}
	return nil
}
