package main

// Notes:
// - t.Setenv forbids t.Parallel, so these tests run sequentially.

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// TestLoadEnvConfig - MDBANNER_* variables
// ---------------------------------------------------------------------------

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("MDBANNER_VAULT", "/notes")
	t.Setenv("MDBANNER_STYLE", "minimal")
	t.Setenv("MDBANNER_TIMEOUT", "45s")
	t.Setenv("MDBANNER_WORKERS", "3")
	t.Setenv("MDBANNER_PAGE_SIZE", "a4")
	t.Setenv("MDBANNER_ADDR", ":9090")
	t.Setenv("MDBANNER_LOG_FORMAT", "json")

	cfg := loadEnvConfig()

	if cfg.Vault != "/notes" {
		t.Errorf("Vault = %q, want %q", cfg.Vault, "/notes")
	}
	if cfg.Style != "minimal" {
		t.Errorf("Style = %q, want %q", cfg.Style, "minimal")
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.PageSize != "a4" || cfg.Addr != ":9090" || cfg.LogFormat != "json" {
		t.Errorf("PageSize/Addr/LogFormat = %q/%q/%q", cfg.PageSize, cfg.Addr, cfg.LogFormat)
	}
}

func TestLoadEnvConfig_InvalidValuesIgnored(t *testing.T) {
	tests := []struct {
		name    string
		timeout string
		workers string
	}{
		{"garbage", "soon", "many"},
		{"non-positive", "-5s", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MDBANNER_TIMEOUT", tt.timeout)
			t.Setenv("MDBANNER_WORKERS", tt.workers)

			cfg := loadEnvConfig()
			if cfg.Timeout != 0 {
				t.Errorf("Timeout = %v, want 0", cfg.Timeout)
			}
			if cfg.Workers != 0 {
				t.Errorf("Workers = %d, want 0", cfg.Workers)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestWarnUnknownEnvVars - Typo detection
// ---------------------------------------------------------------------------

func TestWarnUnknownEnvVars(t *testing.T) {
	t.Setenv("MDBANNER_STYEL", "minimal")
	t.Setenv("MDBANNER_VAULT", "/notes")

	var buf bytes.Buffer
	warnUnknownEnvVars(&buf)

	got := buf.String()
	if !strings.Contains(got, "MDBANNER_STYEL") {
		t.Errorf("expected warning for MDBANNER_STYEL, got %q", got)
	}
	if strings.Contains(got, "MDBANNER_VAULT") {
		t.Errorf("unexpected warning for MDBANNER_VAULT: %q", got)
	}
}

// ---------------------------------------------------------------------------
// TestPick - Flag over environment
// ---------------------------------------------------------------------------

func TestPick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		flag, env, want string
	}{
		{"a", "b", "a"},
		{"", "b", "b"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := pick(tt.flag, tt.env); got != tt.want {
			t.Errorf("pick(%q, %q) = %q, want %q", tt.flag, tt.env, got, tt.want)
		}
	}
}
