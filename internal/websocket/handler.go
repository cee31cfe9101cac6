package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openblog/backend/internal/auth"
	apperrors "github.com/openblog/backend/internal/errors"
	"github.com/openblog/backend/internal/logger"
)

// Handler upgrades authenticated requests to live comment feeds.
type Handler struct {
	hub       *Hub
	validator auth.TokenValidator
	upgrader  websocket.Upgrader
	log       *logger.Logger
}

// NewHandler creates a feed handler. allowedOrigins follows the CORS list;
// "*" accepts any origin.
func NewHandler(hub *Hub, validator auth.TokenValidator, allowedOrigins []string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		hub:       hub,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.WithComponent("websocket"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		// same-origin requests are always allowed
		return strings.EqualFold(u.Host, r.Host)
	}
}

// ServeWS handles GET /ws/posts/{id}?token=<access token>. Browsers cannot
// set headers on websocket requests, so the token travels in the query.
// The token rules match the bearer middleware.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		apperrors.WriteError(w, requestID, apperrors.TokenMissing())
		return
	}
	if _, err := h.validator.ValidateAccessToken(token); err != nil {
		apperrors.WriteError(w, requestID, apperrors.InvalidToken())
		return
	}

	postID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.NotFound("post"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn(r.Context(), "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	client := NewClient(h.hub, conn, postID.String())
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
