package config

import (
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Identity.Audience != "billtrack-bff" {
		t.Errorf("Identity.Audience = %q", cfg.Identity.Audience)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.Backend.BaseURL != "https://billing.internal" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want 10s", cfg.Backend.Timeout)
	}
	if cfg.Backend.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("Backend.CircuitBreaker.FailureThreshold = %d, want 5",
			cfg.Backend.CircuitBreaker.FailureThreshold)
	}
	if cfg.UI.RecentInvoices != 6 {
		t.Errorf("UI.RecentInvoices = %d, want 6", cfg.UI.RecentInvoices)
	}
	if cfg.Dashboard.Cache.TTL != 45*time.Second {
		t.Errorf("Dashboard.Cache.TTL = %v, want 45s", cfg.Dashboard.Cache.TTL)
	}
	if cfg.Session.TTL != 20*time.Minute {
		t.Errorf("Session.TTL = %v, want 20m", cfg.Session.TTL)
	}
	if !cfg.Idempotency.Enabled {
		t.Error("Idempotency.Enabled = false, want true")
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.UI.PageSize != 10 {
		t.Errorf("default UI.PageSize = %d, want 10", cfg.UI.PageSize)
	}
	if cfg.Backend.Retry.MaxAttempts != 3 {
		t.Errorf("default Backend.Retry.MaxAttempts = %d, want 3", cfg.Backend.Retry.MaxAttempts)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BILLTRACK_SERVER_PORT", "3000")
	t.Setenv("BILLTRACK_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("BILLTRACK_BACKEND_BASE_URL", "https://billing-env.internal")
	t.Setenv("BILLTRACK_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.com" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Backend.BaseURL != "https://billing-env.internal" {
		t.Errorf("Backend.BaseURL = %q, want env override", cfg.Backend.BaseURL)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	cfg.Identity.Audience = "billtrack-bff"
	cfg.Backend.BaseURL = "https://billing.internal"
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}

func TestValidate_missing_backend(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	cfg.Identity.Audience = "billtrack-bff"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() without backend.base_url should return error")
	}
}
