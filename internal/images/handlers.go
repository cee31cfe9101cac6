package images

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openblog/backend/internal/errors"
	"github.com/openblog/backend/internal/logger"
	"github.com/openblog/backend/internal/storage"
)

// multipartOverhead is allowed on top of the file size for the form framing.
const multipartOverhead = 64 << 10

var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

type Counter interface {
	IncCounter(name string)
}

type Handlers struct {
	store    storage.ImageStore
	apiURL   string
	maxBytes int64
	metrics  Counter
	now      func() time.Time
	log      *logger.Logger
}

func NewHandlers(store storage.ImageStore, apiURL string, maxBytes int64, metrics Counter, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{
		store:    store,
		apiURL:   strings.TrimRight(apiURL, "/"),
		maxBytes: maxBytes,
		metrics:  metrics,
		now:      time.Now,
		log:      log.WithComponent("images"),
	}
}

// URL is the public address of a stored image.
func (h *Handlers) URL(name string) string {
	return fmt.Sprintf("%s/file/%s", h.apiURL, url.PathEscape(name))
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func tooLarge(max int64) error {
	return apperrors.UnsupportedFile(fmt.Sprintf("file exceeds the %d byte limit", max))
}

// Upload handles POST /file/upload. The response body is the image URL as a
// JSON string.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return tooLarge(h.maxBytes)
		case errors.Is(err, http.ErrMissingFile):
			return apperrors.MissingField("file")
		}
		return apperrors.BadRequest("invalid multipart form")
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if header.Size > h.maxBytes {
		return tooLarge(h.maxBytes)
	}

	declared := mediaType(header.Header.Get("Content-Type"))
	if !allowedTypes[declared] {
		return apperrors.UnsupportedFile("only png and jpeg images are accepted")
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return apperrors.BadRequest("unreadable upload")
	}
	detected := mediaType(http.DetectContentType(sniff[:n]))
	if !allowedTypes[detected] {
		return apperrors.UnsupportedFile("file content is not a png or jpeg image")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return apperrors.InternalError("failed to rewind upload").WithCause(err)
	}

	name := StoredName(h.now(), header.Filename)
	if err := h.store.Put(r.Context(), name, file, header.Size, detected); err != nil {
		return apperrors.StorageError(err)
	}

	if h.metrics != nil {
		h.metrics.IncCounter("images_uploaded_total")
	}
	h.log.Info(r.Context(), "image uploaded", map[string]any{
		"filename": name,
		"size":     header.Size,
		"type":     detected,
	})

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, h.URL(name))
	return nil
}

// Serve handles GET /file/{filename}. It is public so that <img> tags work.
func (h *Handlers) Serve(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "filename")
	if name == "" || name != SanitizeFilename(name) {
		return apperrors.NotFound("file")
	}

	body, info, err := h.store.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return apperrors.NotFound("file")
		}
		return apperrors.StorageError(err)
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		w.Header().Set("ETag", `"`+strings.Trim(info.ETag, `"`)+`"`)
	}
	// Stored names carry a timestamp and are never overwritten.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn(r.Context(), "image stream interrupted", map[string]any{"filename": name, "error": err.Error()})
	}
	return nil
}
