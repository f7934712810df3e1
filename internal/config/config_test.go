package config

import (
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"HOST", "PORT", "HEADLESS", "BROWSER_PATH",
	"BROWSER_POOL_SIZE", "BROWSER_POOL_TIMEOUT", "MAX_MEMORY_MB",
	"SESSION_TTL", "SESSION_CLEANUP_INTERVAL", "MAX_SESSIONS",
	"DEFAULT_TIMEOUT", "MAX_TIMEOUT", "SETTLE_DELAY", "AUTO_ANALYZE",
	"SIGNATURES_PATH", "SIGNATURES_HOT_RELOAD",
	"SIGNATURES_REMOTE_URL", "SIGNATURES_REFRESH_INTERVAL",
	"LOG_LEVEL",
	"PROMETHEUS_ENABLED", "PROMETHEUS_PORT",
}

func clearEnv() {
	for _, env := range allEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	// Server defaults
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8192 {
		t.Errorf("Expected default port 8192, got %d", cfg.Port)
	}

	// Browser defaults
	if !cfg.Headless {
		t.Error("Expected Headless to be true by default")
	}
	if cfg.BrowserPath != "" {
		t.Errorf("Expected empty BrowserPath by default, got %q", cfg.BrowserPath)
	}

	// Pool defaults
	if cfg.BrowserPoolSize != 3 {
		t.Errorf("Expected default pool size 3, got %d", cfg.BrowserPoolSize)
	}
	if cfg.BrowserPoolTimeout != 30*time.Second {
		t.Errorf("Expected default pool timeout 30s, got %v", cfg.BrowserPoolTimeout)
	}
	if cfg.MaxMemoryMB != 2048 {
		t.Errorf("Expected default max memory 2048MB, got %d", cfg.MaxMemoryMB)
	}

	// Session defaults
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("Expected default session TTL 30m, got %v", cfg.SessionTTL)
	}
	if cfg.MaxSessions != 100 {
		t.Errorf("Expected default max sessions 100, got %d", cfg.MaxSessions)
	}

	// Analysis defaults
	if cfg.DefaultTimeout != 60*time.Second {
		t.Errorf("Expected default timeout 60s, got %v", cfg.DefaultTimeout)
	}
	if cfg.MaxTimeout != 300*time.Second {
		t.Errorf("Expected max timeout 300s, got %v", cfg.MaxTimeout)
	}
	if cfg.SettleDelay != 2*time.Second {
		t.Errorf("Expected default settle delay 2s, got %v", cfg.SettleDelay)
	}
	if cfg.AutoAnalyze {
		t.Error("Expected AutoAnalyze to be false by default")
	}

	// Signature defaults
	if cfg.SignaturesPath != "" {
		t.Errorf("Expected empty SignaturesPath by default, got %q", cfg.SignaturesPath)
	}
	if cfg.SignaturesHotReload {
		t.Error("Expected SignaturesHotReload to be false by default")
	}
	if cfg.SignaturesRefreshInterval != 1*time.Hour {
		t.Errorf("Expected default refresh interval 1h, got %v", cfg.SignaturesRefreshInterval)
	}

	// Logging defaults
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.LogLevel)
	}

	// Metrics defaults
	if cfg.PrometheusEnabled {
		t.Error("Expected PrometheusEnabled to be false by default")
	}
	if cfg.PrometheusPort != 8193 {
		t.Errorf("Expected default Prometheus port 8193, got %d", cfg.PrometheusPort)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("HOST", "0.0.0.0")
	os.Setenv("PORT", "9999")
	os.Setenv("HEADLESS", "false")
	os.Setenv("BROWSER_PATH", "/usr/bin/chromium")
	os.Setenv("BROWSER_POOL_SIZE", "5")
	os.Setenv("BROWSER_POOL_TIMEOUT", "1m")
	os.Setenv("MAX_MEMORY_MB", "4096")
	os.Setenv("SESSION_TTL", "1h")
	os.Setenv("MAX_SESSIONS", "50")
	os.Setenv("DEFAULT_TIMEOUT", "30s")
	os.Setenv("MAX_TIMEOUT", "10m")
	os.Setenv("SETTLE_DELAY", "5s")
	os.Setenv("AUTO_ANALYZE", "true")
	os.Setenv("SIGNATURES_PATH", "/etc/pagerecon/signatures.yaml")
	os.Setenv("SIGNATURES_HOT_RELOAD", "true")
	os.Setenv("SIGNATURES_REMOTE_URL", "https://signatures.example.com/tables.yaml")
	os.Setenv("SIGNATURES_REFRESH_INTERVAL", "30m")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("PROMETHEUS_ENABLED", "true")
	os.Setenv("PROMETHEUS_PORT", "9090")

	defer clearEnv()

	cfg := Load()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %q", cfg.Host)
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Port)
	}
	if cfg.Headless {
		t.Error("Expected Headless to be false")
	}
	if cfg.BrowserPath != "/usr/bin/chromium" {
		t.Errorf("Expected BrowserPath '/usr/bin/chromium', got %q", cfg.BrowserPath)
	}
	if cfg.BrowserPoolSize != 5 {
		t.Errorf("Expected pool size 5, got %d", cfg.BrowserPoolSize)
	}
	if cfg.BrowserPoolTimeout != 1*time.Minute {
		t.Errorf("Expected pool timeout 1m, got %v", cfg.BrowserPoolTimeout)
	}
	if cfg.MaxMemoryMB != 4096 {
		t.Errorf("Expected max memory 4096MB, got %d", cfg.MaxMemoryMB)
	}
	if cfg.SessionTTL != 1*time.Hour {
		t.Errorf("Expected session TTL 1h, got %v", cfg.SessionTTL)
	}
	if cfg.MaxSessions != 50 {
		t.Errorf("Expected max sessions 50, got %d", cfg.MaxSessions)
	}
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.DefaultTimeout)
	}
	if cfg.MaxTimeout != 10*time.Minute {
		t.Errorf("Expected max timeout 10m, got %v", cfg.MaxTimeout)
	}
	if cfg.SettleDelay != 5*time.Second {
		t.Errorf("Expected settle delay 5s, got %v", cfg.SettleDelay)
	}
	if !cfg.AutoAnalyze {
		t.Error("Expected AutoAnalyze to be true")
	}
	if cfg.SignaturesPath != "/etc/pagerecon/signatures.yaml" {
		t.Errorf("Expected signatures path override, got %q", cfg.SignaturesPath)
	}
	if !cfg.SignaturesHotReload {
		t.Error("Expected SignaturesHotReload to be true")
	}
	if cfg.SignaturesRemoteURL != "https://signatures.example.com/tables.yaml" {
		t.Errorf("Expected remote URL override, got %q", cfg.SignaturesRemoteURL)
	}
	if cfg.SignaturesRefreshInterval != 30*time.Minute {
		t.Errorf("Expected refresh interval 30m, got %v", cfg.SignaturesRefreshInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.LogLevel)
	}
	if !cfg.PrometheusEnabled {
		t.Error("Expected PrometheusEnabled to be true")
	}
	if cfg.PrometheusPort != 9090 {
		t.Errorf("Expected Prometheus port 9090, got %d", cfg.PrometheusPort)
	}
}

func TestInvalidEnvValues(t *testing.T) {
	os.Setenv("PORT", "not_a_number")
	os.Setenv("HEADLESS", "not_a_bool")
	os.Setenv("BROWSER_POOL_TIMEOUT", "not_a_duration")

	defer clearEnv()

	cfg := Load()

	// Should fall back to defaults for invalid values
	if cfg.Port != 8192 {
		t.Errorf("Expected default port 8192 for invalid value, got %d", cfg.Port)
	}
	if !cfg.Headless {
		t.Error("Expected default Headless (true) for invalid value")
	}
	if cfg.BrowserPoolTimeout != 30*time.Second {
		t.Errorf("Expected default pool timeout for invalid value, got %v", cfg.BrowserPoolTimeout)
	}
}

func TestValidateCorrectsBounds(t *testing.T) {
	cfg := &Config{
		Port:                   70000,
		BrowserPoolSize:        100,
		BrowserPoolTimeout:     10 * time.Second,
		MaxMemoryMB:            1,
		SessionTTL:             time.Second,
		SessionCleanupInterval: time.Second,
		MaxSessions:            0,
		DefaultTimeout:         20 * time.Minute,
		MaxTimeout:             20 * time.Minute,
		SettleDelay:            5 * time.Minute,
		LogLevel:               "verbose",
	}

	cfg.Validate()

	if cfg.Port != 8192 {
		t.Errorf("Port = %d, want corrected default 8192", cfg.Port)
	}
	if cfg.BrowserPoolSize != 20 {
		t.Errorf("BrowserPoolSize = %d, want capped 20", cfg.BrowserPoolSize)
	}
	if cfg.MaxMemoryMB != 2048 {
		t.Errorf("MaxMemoryMB = %d, want corrected 2048", cfg.MaxMemoryMB)
	}
	if cfg.MaxTimeout != 10*time.Minute {
		t.Errorf("MaxTimeout = %v, want capped 10m", cfg.MaxTimeout)
	}
	if cfg.DefaultTimeout > cfg.MaxTimeout {
		t.Errorf("DefaultTimeout %v exceeds MaxTimeout %v after validation", cfg.DefaultTimeout, cfg.MaxTimeout)
	}
	if cfg.SettleDelay != 60*time.Second {
		t.Errorf("SettleDelay = %v, want capped 60s", cfg.SettleDelay)
	}
	if cfg.SessionTTL != 1*time.Minute {
		t.Errorf("SessionTTL = %v, want minimum 1m", cfg.SessionTTL)
	}
	if cfg.SessionCleanupInterval != 10*time.Second {
		t.Errorf("SessionCleanupInterval = %v, want minimum 10s", cfg.SessionCleanupInterval)
	}
	if cfg.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want corrected 100", cfg.MaxSessions)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want corrected 'info'", cfg.LogLevel)
	}
}

func TestValidateSignatures(t *testing.T) {
	cfg := &Config{
		Port:                   8192,
		BrowserPoolSize:        3,
		BrowserPoolTimeout:     30 * time.Second,
		MaxMemoryMB:            2048,
		SessionTTL:             30 * time.Minute,
		SessionCleanupInterval: time.Minute,
		MaxSessions:            100,
		DefaultTimeout:         60 * time.Second,
		MaxTimeout:             300 * time.Second,
		LogLevel:               "info",

		SignaturesPath:            "../../etc/signatures.yaml",
		SignaturesHotReload:       true,
		SignaturesRemoteURL:       "ftp://signatures.example.com/tables.yaml",
		SignaturesRefreshInterval: time.Second,
	}

	cfg.Validate()

	if cfg.SignaturesPath != "" {
		t.Errorf("SignaturesPath = %q, want cleared for traversal sequence", cfg.SignaturesPath)
	}
	if cfg.SignaturesHotReload {
		t.Error("SignaturesHotReload should be disabled once the path is cleared")
	}
	if cfg.SignaturesRemoteURL != "" {
		t.Errorf("SignaturesRemoteURL = %q, want cleared for non-http scheme", cfg.SignaturesRemoteURL)
	}
}

func TestValidatePortConflicts(t *testing.T) {
	cfg := &Config{
		Port:                   9000,
		BrowserPoolSize:        3,
		BrowserPoolTimeout:     30 * time.Second,
		MaxMemoryMB:            2048,
		SessionTTL:             30 * time.Minute,
		SessionCleanupInterval: time.Minute,
		MaxSessions:            100,
		DefaultTimeout:         60 * time.Second,
		MaxTimeout:             300 * time.Second,
		LogLevel:               "info",

		PrometheusEnabled: true,
		PrometheusPort:    9000,
	}

	cfg.Validate()

	if cfg.PrometheusEnabled {
		t.Error("PrometheusEnabled should be disabled when its port conflicts with PORT")
	}
}
