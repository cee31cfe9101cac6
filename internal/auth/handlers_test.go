package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/openblog/backend/internal/errors"
)

func serve(h apperrors.Handler, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	apperrors.HandleFunc(h, nil).ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandlers_Signup(t *testing.T) {
	env := newTestEnv()
	events := &countingEvents{}
	h := NewHandlers(env.svc, events, nil)

	tests := []struct {
		name       string
		body       SignupRequest
		wantStatus int
		wantField  string
	}{
		{"valid", SignupRequest{Name: "Alice", Username: "alice", Password: "secret123"}, http.StatusOK, ""},
		{"duplicate", SignupRequest{Name: "Alice", Username: "alice", Password: "secret123"}, http.StatusBadRequest, "username"},
		{"missing name", SignupRequest{Username: "bob", Password: "pw"}, http.StatusBadRequest, "name"},
		{"missing username", SignupRequest{Name: "Bob", Password: "pw"}, http.StatusBadRequest, "username"},
		{"missing password", SignupRequest{Name: "Bob", Username: "bob"}, http.StatusBadRequest, "password"},
		{"name too long", SignupRequest{Name: strings.Repeat("n", MaxNameLength+1), Username: "carol", Password: "pw"}, http.StatusBadRequest, "name"},
		{"username too long", SignupRequest{Name: "Carol", Username: strings.Repeat("ü", MaxNameLength+1), Password: "pw"}, http.StatusBadRequest, "username"},
		{"username at limit", SignupRequest{Name: "Dave", Username: strings.Repeat("d", MaxNameLength), Password: "pw"}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h.Signup, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				body := decodeError(t, rr)
				if body.Field != tt.wantField {
					t.Errorf("expected field %q, got %q", tt.wantField, body.Field)
				}
				if body.Msg == "" {
					t.Error("expected msg")
				}
			}
		})
	}

	if events.get("auth_signups_total") != 2 {
		t.Errorf("expected two signup events, got %d", events.get("auth_signups_total"))
	}
}

func TestHandlers_LoginScenario(t *testing.T) {
	env := newTestEnv()
	h := NewHandlers(env.svc, nil, nil)

	if rr := serve(h.Signup, SignupRequest{Name: "Alice", Username: "alice", Password: "secret123"}); rr.Code != http.StatusOK {
		t.Fatalf("signup failed: %d %s", rr.Code, rr.Body.String())
	}

	rr := serve(h.Login, LoginRequest{Username: "alice", Password: "secret123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp LoginResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.Name == "" {
		t.Errorf("expected non-empty tokens and name, got %+v", resp)
	}
	if resp.Username != "alice" {
		t.Errorf("expected username alice, got %q", resp.Username)
	}
}

func TestHandlers_LoginFailures(t *testing.T) {
	env := newTestEnv()
	events := &countingEvents{}
	h := NewHandlers(env.svc, events, nil)
	serve(h.Signup, SignupRequest{Name: "Alice", Username: "alice", Password: "secret123"})

	tests := []struct {
		name      string
		body      LoginRequest
		wantField string
	}{
		{"unknown username", LoginRequest{Username: "bob", Password: "secret123"}, "username"},
		{"wrong password", LoginRequest{Username: "alice", Password: "nope"}, "password"},
		{"missing password", LoginRequest{Username: "alice"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h.Login, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if body := decodeError(t, rr); body.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, body.Field)
			}
		})
	}

	if events.get("auth_login_failures_total") != 2 {
		t.Errorf("expected two failure events, got %d", events.get("auth_login_failures_total"))
	}
}

func TestHandlers_Refresh(t *testing.T) {
	env := newTestEnv()
	h := NewHandlers(env.svc, nil, nil)
	serve(h.Signup, SignupRequest{Name: "Alice", Username: "alice", Password: "secret123"})

	rr := serve(h.Login, LoginRequest{Username: "alice", Password: "secret123"})
	var login LoginResponse
	json.NewDecoder(rr.Body).Decode(&login)

	t.Run("valid", func(t *testing.T) {
		rr := serve(h.Refresh, RefreshRequest{RefreshToken: login.RefreshToken})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp RefreshResponse
		json.NewDecoder(rr.Body).Decode(&resp)
		if resp.AccessToken == "" || resp.Username != "alice" || resp.Name != "Alice" {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("bearer prefixed", func(t *testing.T) {
		rr := serve(h.Refresh, RefreshRequest{RefreshToken: "Bearer " + login.RefreshToken})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("missing", func(t *testing.T) {
		rr := serve(h.Refresh, RefreshRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		rr := serve(h.Refresh, RefreshRequest{RefreshToken: "garbage"})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("after logout", func(t *testing.T) {
		if rr := serve(h.Logout, RefreshRequest{RefreshToken: login.RefreshToken}); rr.Code != http.StatusOK {
			t.Fatalf("logout: expected 200, got %d", rr.Code)
		}
		rr := serve(h.Refresh, RefreshRequest{RefreshToken: login.RefreshToken})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})
}

func TestHandlers_LogoutMissingToken(t *testing.T) {
	h := NewHandlers(newTestEnv().svc, nil, nil)
	rr := serve(h.Logout, RefreshRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Field != "refreshToken" {
		t.Errorf("expected field refreshToken, got %q", body.Field)
	}
}

func TestMiddleware(t *testing.T) {
	issuer := NewTokenIssuer(testAccessSecret, testRefreshSecret, AccessTokenExpiry)
	user := UserClaims{Username: "alice", Name: "Alice"}

	valid, _ := issuer.IssueAccessToken(user)
	wrongSecret, _ := NewTokenIssuer("not-the-access-secret", testRefreshSecret, AccessTokenExpiry).IssueAccessToken(user)
	refresh, _ := issuer.SignRefreshToken(user)

	past := NewTokenIssuer(testAccessSecret, testRefreshSecret, AccessTokenExpiry)
	past.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	expired, _ := past.IssueAccessToken(user)

	var gotClaims *Claims
	protected := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"no header", "", http.StatusUnauthorized, "token is missing"},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, "token is missing"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "token is missing"},
		{"wrong secret", "Bearer " + wrongSecret, http.StatusForbidden, "invalid token"},
		{"expired", "Bearer " + expired, http.StatusForbidden, "invalid token"},
		{"refresh token", "Bearer " + refresh, http.StatusForbidden, "invalid token"},
		{"garbage", "Bearer abc.def.ghi", http.StatusForbidden, "invalid token"},
		{"valid", "Bearer " + valid, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotClaims = nil
			req := httptest.NewRequest(http.MethodGet, "/posts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if gotClaims == nil || gotClaims.Username != "alice" {
					t.Errorf("expected claims for alice in context, got %+v", gotClaims)
				}
				return
			}
			if gotClaims != nil {
				t.Error("handler must not run for rejected requests")
			}
			if body := decodeError(t, rr); body.Msg != tt.wantMsg {
				t.Errorf("expected msg %q, got %q", tt.wantMsg, body.Msg)
			}
		})
	}
}
