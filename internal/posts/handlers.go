package posts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openblog/backend/internal/auth"
	apperrors "github.com/openblog/backend/internal/errors"
)

type CreatePostRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Picture     string    `json:"picture,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	CreatedDate time.Time `json:"createdDate,omitempty"`
}

type UpdatePostRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Picture     *string  `json:"picture,omitempty"`
	Categories  []string `json:"categories,omitempty"`
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

// toAppError maps service errors onto HTTP errors.
func toAppError(err error) error {
	var fieldErr *FieldError
	switch {
	case errors.As(err, &fieldErr):
		return apperrors.ValidationError(fieldErr.Field, fieldErr.Message)
	case errors.Is(err, ErrNotFound):
		return apperrors.NotFound("post")
	case errors.Is(err, ErrTitleTaken):
		return apperrors.TitleTaken()
	case errors.Is(err, ErrNotOwner):
		return apperrors.Forbidden("you do not own this post")
	}
	return apperrors.DatabaseError(err)
}

func requester(r *http.Request) (string, error) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return "", apperrors.TokenMissing()
	}
	return claims.Username, nil
}

func writeMessage(w http.ResponseWriter, r *http.Request, msg string) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MessageResponse{Msg: msg})
}

// Create handles POST /create. The owner is the authenticated user; any
// username in the body is ignored.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) error {
	owner, err := requester(r)
	if err != nil {
		return err
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	if _, err := h.service.Create(r.Context(), owner, CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Picture:     req.Picture,
		Categories:  req.Categories,
		CreatedDate: req.CreatedDate,
	}); err != nil {
		return toAppError(err)
	}

	writeMessage(w, r, "post saved successfully")
	return nil
}

// List handles GET /posts?category=&page=&limit=
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) error {
	page, limit := parsePagination(r)

	result, err := h.service.List(r.Context(), ListParams{
		Category: r.URL.Query().Get("category"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return toAppError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, result)
	return nil
}

// Get handles GET /post/{id}; id may also be a slug.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) error {
	post, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return toAppError(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, post)
	return nil
}

// Update handles PUT /update/{id}.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) error {
	username, err := requester(r)
	if err != nil {
		return err
	}

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}

	if _, err := h.service.Update(r.Context(), username, chi.URLParam(r, "id"), UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Picture:     req.Picture,
		Categories:  req.Categories,
	}); err != nil {
		return toAppError(err)
	}

	writeMessage(w, r, "post updated successfully")
	return nil
}

// Delete handles DELETE /delete/{id}.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) error {
	username, err := requester(r)
	if err != nil {
		return err
	}

	if err := h.service.Delete(r.Context(), username, chi.URLParam(r, "id")); err != nil {
		return toAppError(err)
	}

	writeMessage(w, r, "post deleted successfully")
	return nil
}

// parsePagination reads page and limit; unparseable values fall back to the
// defaults and NormalizePage clamps the rest.
func parsePagination(r *http.Request) (page, limit int) {
	page, limit = 1, DefaultLimit

	if v := r.URL.Query().Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			page = parsed
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
			if limit == 0 {
				// 0 clamps up to 1, not the default
				limit = 1
			}
		}
	}

	return NormalizePage(page, limit)
}
