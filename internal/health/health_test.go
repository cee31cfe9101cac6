package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ok(ctx context.Context) error { return nil }

func failing(ctx context.Context) error { return errors.New("connection refused") }

func TestChecker_BasicHealth(t *testing.T) {
	checker := NewChecker(&CheckerConfig{
		Version: "1.0.0",
		Timeout: 5 * time.Second,
	})

	response := checker.Check(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", response.Version)
	}
}

func TestChecker_DeepCheck(t *testing.T) {
	tests := []struct {
		name       string
		probes     []Probe
		wantStatus Status
	}{
		{
			name: "all healthy",
			probes: []Probe{
				{Name: "database", Check: ok},
				{Name: "storage", Check: ok},
				{Name: "redis", Check: ok, Optional: true},
			},
			wantStatus: StatusHealthy,
		},
		{
			name: "redis down degrades",
			probes: []Probe{
				{Name: "database", Check: ok},
				{Name: "redis", Check: failing, Optional: true},
			},
			wantStatus: StatusDegraded,
		},
		{
			name: "redis not configured degrades",
			probes: []Probe{
				{Name: "database", Check: ok},
				{Name: "redis", Optional: true},
			},
			wantStatus: StatusDegraded,
		},
		{
			name: "storage down is unhealthy",
			probes: []Probe{
				{Name: "database", Check: ok},
				{Name: "storage", Check: failing},
				{Name: "redis", Check: failing, Optional: true},
			},
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker(&CheckerConfig{Probes: tt.probes})
			response := checker.DeepCheck(context.Background())

			if response.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, response.Status)
			}
			if len(response.Components) != len(tt.probes) {
				t.Errorf("expected %d components, got %d", len(tt.probes), len(response.Components))
			}
		})
	}
}

func TestChecker_ProbeTimeout(t *testing.T) {
	checker := NewChecker(&CheckerConfig{
		Probes: []Probe{{Name: "database", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}},
		Timeout: 20 * time.Millisecond,
	})

	response := checker.DeepCheck(context.Background())
	if response.Components["database"].Status != StatusUnhealthy {
		t.Errorf("expected timed out probe to be unhealthy, got %s", response.Components["database"].Status)
	}
}

func TestHandler_LivenessHandler(t *testing.T) {
	handler := NewHandler(NewChecker(&CheckerConfig{Version: "1.0.0"}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()

	handler.LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
}

func TestHandler_ReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		probes   []Probe
		wantCode int
	}{
		{"healthy", []Probe{{Name: "storage", Check: ok}}, http.StatusOK},
		{"degraded still serves", []Probe{{Name: "redis", Check: failing, Optional: true}}, http.StatusOK},
		{"unhealthy", []Probe{{Name: "storage", Check: failing}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(NewChecker(&CheckerConfig{Probes: tt.probes}))

			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}

func TestHandler_HealthHandler_DeepQuery(t *testing.T) {
	handler := NewHandler(NewChecker(&CheckerConfig{
		Probes:  []Probe{{Name: "storage", Check: ok}},
		Version: "1.0.0",
	}))

	req := httptest.NewRequest(http.MethodGet, "/health?deep=true", nil)
	w := httptest.NewRecorder()

	handler.HealthHandler(w, req)

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Components) == 0 {
		t.Error("deep check should include components")
	}
}
