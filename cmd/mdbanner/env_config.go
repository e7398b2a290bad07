package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	ConfigPath string        // MDBANNER_CONFIG: config file name or path
	Vault      string        // MDBANNER_VAULT: vault directory
	Style      string        // MDBANNER_STYLE: style name or path
	Timeout    time.Duration // MDBANNER_TIMEOUT: per-note timeout

	OutputDir  string // MDBANNER_OUTPUT_DIR: default output directory
	Workers    int    // MDBANNER_WORKERS: parallel workers
	PageSize   string // MDBANNER_PAGE_SIZE: letter, a4, legal
	Addr       string // MDBANNER_ADDR: serve listen address
	KeywordMap string // MDBANNER_KEYWORD_MAP: keyword table file

	LogLevel  string // MDBANNER_LOG_LEVEL: none, normal, debug
	LogFormat string // MDBANNER_LOG_FORMAT: console, json
}

// knownEnvVars lists valid MDBANNER_* environment variables.
var knownEnvVars = map[string]bool{
	"MDBANNER_CONFIG":      true,
	"MDBANNER_VAULT":       true,
	"MDBANNER_STYLE":       true,
	"MDBANNER_TIMEOUT":     true,
	"MDBANNER_OUTPUT_DIR":  true,
	"MDBANNER_WORKERS":     true,
	"MDBANNER_PAGE_SIZE":   true,
	"MDBANNER_ADDR":        true,
	"MDBANNER_KEYWORD_MAP": true,
	"MDBANNER_LOG_LEVEL":   true,
	"MDBANNER_LOG_FORMAT":  true,
}

// loadEnvConfig reads configuration from environment variables.
// Invalid durations and counts are ignored.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath: os.Getenv("MDBANNER_CONFIG"),
		Vault:      os.Getenv("MDBANNER_VAULT"),
		Style:      os.Getenv("MDBANNER_STYLE"),
		OutputDir:  os.Getenv("MDBANNER_OUTPUT_DIR"),
		PageSize:   os.Getenv("MDBANNER_PAGE_SIZE"),
		Addr:       os.Getenv("MDBANNER_ADDR"),
		KeywordMap: os.Getenv("MDBANNER_KEYWORD_MAP"),
		LogLevel:   os.Getenv("MDBANNER_LOG_LEVEL"),
		LogFormat:  os.Getenv("MDBANNER_LOG_FORMAT"),
	}

	if timeout := os.Getenv("MDBANNER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	if workers := os.Getenv("MDBANNER_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars writes a warning for each unrecognized MDBANNER_*
// variable, in name order.
func warnUnknownEnvVars(w io.Writer) {
	var unknown []string
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "MDBANNER_") {
			continue
		}
		name, _, _ := strings.Cut(env, "=")
		if !knownEnvVars[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
	}
}

// pick returns the first non-empty value: flag, then environment.
func pick(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return envValue
}
