package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient ErrorCategory = "client"
	CategoryAuth   ErrorCategory = "auth"
	CategoryServer ErrorCategory = "server"
)

// Common error codes
const (
	// Validation (400)
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeUsernameTaken   = "USERNAME_TAKEN"
	CodeTitleTaken      = "TITLE_TAKEN"
	CodeUnsupportedFile = "UNSUPPORTED_FILE"

	// Authentication
	CodeUnknownUsername = "UNKNOWN_USERNAME"
	CodeWrongPassword   = "WRONG_PASSWORD"
	CodeTokenMissing    = "TOKEN_MISSING"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeForbidden       = "FORBIDDEN"

	// Not found
	CodeNotFound = "NOT_FOUND"

	// Infrastructure
	CodeInternalError = "INTERNAL_ERROR"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeStorageError  = "STORAGE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       string
	Message    string
	Field      string
	Category   ErrorCategory
	HTTPStatus int
	Cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithField tags the error with the request field it refers to.
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// ErrorResponse is the JSON body returned to clients. The msg/field pair is
// what the web client reads; code and requestId are for diagnostics.
type ErrorResponse struct {
	Msg       string `json:"msg"`
	Field     string `json:"field,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Validation errors

func BadRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, CategoryClient, http.StatusBadRequest)
}

func ValidationError(field, message string) *AppError {
	return New(CodeValidationError, message, CategoryClient, http.StatusBadRequest).WithField(field)
}

func MissingField(field string) *AppError {
	return ValidationError(field, fmt.Sprintf("%s is required", field))
}

func UsernameTaken() *AppError {
	return New(CodeUsernameTaken, "username already exists", CategoryClient, http.StatusBadRequest).WithField("username")
}

func TitleTaken() *AppError {
	return New(CodeTitleTaken, "a post with this title already exists", CategoryClient, http.StatusBadRequest).WithField("title")
}

func UnsupportedFile(message string) *AppError {
	return New(CodeUnsupportedFile, message, CategoryClient, http.StatusBadRequest).WithField("file")
}

// Authentication errors

func UnknownUsername() *AppError {
	return New(CodeUnknownUsername, "username does not exist", CategoryAuth, http.StatusBadRequest).WithField("username")
}

func WrongPassword() *AppError {
	return New(CodeWrongPassword, "wrong password", CategoryAuth, http.StatusBadRequest).WithField("password")
}

func TokenMissing() *AppError {
	return New(CodeTokenMissing, "token is missing", CategoryAuth, http.StatusUnauthorized)
}

// InvalidToken is returned by the request gate for a bad or expired access token.
func InvalidToken() *AppError {
	return New(CodeInvalidToken, "invalid token", CategoryAuth, http.StatusForbidden)
}

// InvalidRefreshToken is returned when a refresh token can no longer mint
// access tokens; the client must log in again.
func InvalidRefreshToken() *AppError {
	return New(CodeInvalidToken, "invalid refresh token", CategoryAuth, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message, CategoryAuth, http.StatusForbidden)
}

// Not found

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryClient, http.StatusNotFound)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return New(CodeDatabaseError, "database error", CategoryServer, http.StatusInternalServerError).WithCause(err)
}

func StorageError(err error) *AppError {
	return New(CodeStorageError, "storage error", CategoryServer, http.StatusInternalServerError).WithCause(err)
}

// AsAppError returns err as an *AppError, wrapping anything else as an
// internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError("an unexpected error occurred").WithCause(err)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	appErr := AsAppError(err)

	resp := ErrorResponse{
		Msg:       appErr.Message,
		Field:     appErr.Field,
		Code:      appErr.Code,
		RequestID: requestID,
	}

	WriteJSON(w, requestID, appErr.HTTPStatus, resp)
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsClientError returns true if the error is caused by the request.
func IsClientError(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Category == CategoryClient || appErr.Category == CategoryAuth
}

// IsServerError returns true if the error is a server error
func IsServerError(err error) bool {
	return !IsClientError(err)
}
