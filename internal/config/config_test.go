package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ACCESS_SECRET_KEY", "")
	t.Setenv("REFRESH_SECRET_KEY", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	t.Setenv("BCRYPT_COST", "")
	t.Setenv("POST_CACHE_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServerAddr != ":8000" {
		t.Errorf("expected default addr :8000, got %s", cfg.ServerAddr)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("expected 15m access token TTL, got %v", cfg.AccessTokenTTL)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("expected bcrypt cost 10, got %d", cfg.BcryptCost)
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		t.Error("expected generated secrets")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		t.Error("generated secrets must differ")
	}
	if cfg.TokenRetention != 0 {
		t.Errorf("expected retention disabled by default, got %v", cfg.TokenRetention)
	}
	if cfg.ImageBucket != "photos" {
		t.Errorf("expected bucket photos, got %s", cfg.ImageBucket)
	}
	if cfg.PostCacheTTL != time.Minute {
		t.Errorf("expected 1m post cache TTL, got %v", cfg.PostCacheTTL)
	}
	if len(cfg.Notices) != 2 {
		t.Errorf("expected a notice per generated secret, got %q", cfg.Notices)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ACCESS_SECRET_KEY", "access")
	t.Setenv("REFRESH_SECRET_KEY", "refresh")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("API_URL", "https://blog.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("STORAGE_DRIVER", "S3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.AccessSecret != "access" || cfg.RefreshSecret != "refresh" {
		t.Error("secrets not read from environment")
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Errorf("expected 5m, got %v", cfg.AccessTokenTTL)
	}
	if cfg.APIURL != "https://blog.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.APIURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.StorageDriver != "s3" {
		t.Errorf("expected s3 driver, got %s", cfg.StorageDriver)
	}
	if len(cfg.Notices) != 0 {
		t.Errorf("expected no notices with secrets set, got %q", cfg.Notices)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"same secrets", map[string]string{"ACCESS_SECRET_KEY": "x", "REFRESH_SECRET_KEY": "x"}},
		{"bad ttl", map[string]string{"ACCESS_TOKEN_TTL": "soon"}},
		{"bad cost", map[string]string{"BCRYPT_COST": "99"}},
		{"bad driver", map[string]string{"STORAGE_DRIVER": "gridfs"}},
		{"negative retention", map[string]string{"TOKEN_RETENTION": "-1h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ACCESS_SECRET_KEY", "a")
			t.Setenv("REFRESH_SECRET_KEY", "b")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
