package comments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openblog/backend/internal/auth"
	apperrors "github.com/openblog/backend/internal/errors"
)

type NewCommentRequest struct {
	PostID   string    `json:"postId"`
	Comments string    `json:"comments"`
	Date     time.Time `json:"date,omitempty"`
}

type MessageResponse struct {
	Msg string `json:"msg"`
}

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

func toAppError(err error) error {
	var fieldErr *FieldError
	switch {
	case errors.As(err, &fieldErr):
		return apperrors.ValidationError(fieldErr.Field, fieldErr.Message)
	case errors.Is(err, ErrPostNotFound):
		return apperrors.NotFound("post")
	case errors.Is(err, ErrCommentNotFound):
		return apperrors.NotFound("comment")
	case errors.Is(err, ErrNotCommenter):
		return apperrors.Forbidden("you did not write this comment")
	}
	return apperrors.DatabaseError(err)
}

// New handles POST /comment/new. The commenter is the authenticated user.
func (h *Handlers) New(w http.ResponseWriter, r *http.Request) error {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return apperrors.TokenMissing()
	}

	var req NewCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	if _, err := h.service.Create(r.Context(), claims.Username, req.PostID, req.Comments, req.Date); err != nil {
		return toAppError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MessageResponse{Msg: "comment saved successfully"})
	return nil
}

// List handles GET /comments/{id} where id is the post id.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) error {
	views, err := h.service.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return toAppError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, views)
	return nil
}

// Delete handles DELETE /comment/delete/{id}.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) error {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return apperrors.TokenMissing()
	}

	if err := h.service.Delete(r.Context(), claims.Username, chi.URLParam(r, "id")); err != nil {
		return toAppError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MessageResponse{Msg: "comment deleted successfully"})
	return nil
}
