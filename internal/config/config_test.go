package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDigestDefaults(t *testing.T) {
	t.Setenv("APP_URL", "https://example.com/ ")
	t.Setenv("STRIPE_PRICE_MONTHLY", "price_m")

	cfg, err := LoadDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AppURL != "https://example.com" {
		t.Fatalf("expected trimmed app URL, got %q", cfg.AppURL)
	}

	if cfg.DigestLookback != 24*time.Hour {
		t.Fatalf("unexpected lookback: %v", cfg.DigestLookback)
	}

	if cfg.DatabaseURL != "db.sqlite" {
		t.Fatalf("unexpected database URL: %q", cfg.DatabaseURL)
	}

	prices := cfg.StripePrices()
	if prices["monthly"] != "price_m" {
		t.Fatalf("unexpected monthly price: %q", prices["monthly"])
	}
	if _, ok := prices["yearly"]; ok {
		t.Fatalf("expected yearly plan to be absent")
	}
}

func TestLoadDigestRequiresAppURL(t *testing.T) {
	t.Setenv("APP_URL", "")

	if _, err := LoadDigest(); err == nil {
		t.Fatalf("expected error when APP_URL is empty")
	}
}

func TestLoadAgentDefaults(t *testing.T) {
	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.GitHubOrg != "brandnewbox" {
		t.Fatalf("unexpected org: %q", cfg.GitHubOrg)
	}
	if cfg.SearchCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected cache TTL: %v", cfg.SearchCacheTTL)
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for raw, want := range tests {
		if got := LogLevel(raw); got != want {
			t.Fatalf("LogLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestLoadAgentWithoutDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := LoadAgent(); err != nil {
		t.Fatalf("missing .env must not fail: %v", err)
	}
}

func TestLoadRejectsMalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GITHUB_ORG=\"never closed\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("APP_URL", "https://example.com")

	_, err := LoadAgent()
	if err == nil || !strings.Contains(err.Error(), "load .env") {
		t.Fatalf("expected .env parse error, got %v", err)
	}

	if _, err = LoadDigest(); err == nil {
		t.Fatalf("expected .env parse error from LoadDigest")
	}
}
