package errors

import (
	"net/http"
)

// RequestIDHeader is the HTTP header for request ID
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware injects a request ID into the context and response
// headers. A well-formed incoming X-Request-ID is reused.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !acceptableRequestID(requestID) {
			requestID = GenerateRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

// Handler is an http handler that reports failures by returning them.
type Handler func(w http.ResponseWriter, r *http.Request) error

// ErrorReporter is notified of every error a Handler returns before the
// response is written.
type ErrorReporter func(r *http.Request, err *AppError)

// HandleFunc converts a Handler to a standard http.HandlerFunc with automatic error handling
func HandleFunc(h Handler, report ErrorReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			appErr := AsAppError(err)
			if report != nil {
				report(r, appErr)
			}
			WriteError(w, GetRequestID(r.Context()), appErr)
		}
	}
}
