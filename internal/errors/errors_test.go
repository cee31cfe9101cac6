package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_Body(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantField  string
	}{
		{"missing field", MissingField("password"), http.StatusBadRequest, "password is required", "password"},
		{"unknown username", UnknownUsername(), http.StatusBadRequest, "username does not exist", "username"},
		{"token missing", TokenMissing(), http.StatusUnauthorized, "token is missing", ""},
		{"invalid token", InvalidToken(), http.StatusForbidden, "invalid token", ""},
		{"plain error", errors.New("driver: bad connection"), http.StatusInternalServerError, "an unexpected error occurred", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, "req-1", tt.err)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if rr.Header().Get(RequestIDHeader) != "req-1" {
				t.Errorf("expected request id header")
			}

			var body ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Msg != tt.wantMsg {
				t.Errorf("expected msg %q, got %q", tt.wantMsg, body.Msg)
			}
			if body.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, body.Field)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := DatabaseError(cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !IsServerError(err) || IsClientError(err) {
		t.Error("database error should be a server error")
	}
	if !IsClientError(WrongPassword()) {
		t.Error("wrong password should be a client error")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{"generated", "", false},
		{"reused", "abc-123", true},
		{"rejected with spaces", "bad id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if seen == "" {
				t.Fatal("expected request id in context")
			}
			if (seen == tt.incoming) != tt.reuse {
				t.Errorf("incoming %q, got %q", tt.incoming, seen)
			}
			if rr.Header().Get(RequestIDHeader) != seen {
				t.Error("response header should match context request id")
			}
		})
	}
}

func TestHandleFunc_ReportsErrors(t *testing.T) {
	var reported *AppError
	h := HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		return NotFound("post")
	}, func(r *http.Request, err *AppError) {
		reported = err
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/post/x", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if reported == nil || reported.Code != CodeNotFound {
		t.Errorf("expected reporter to receive NOT_FOUND, got %v", reported)
	}
}
