package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const baseConfig = `
port: "8080"
logLevel: "info"
firebaseProjectId: "safety-app"
redisAddr: "localhost:6379"
`

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("AIRTABLE_KEY", "pat-secret")
	t.Setenv("AIRTABLE_BASE_ID_DC3", "appDC3")
	t.Setenv("CALLABLE_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("CALLABLE_TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 192.168.0.1")

	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AirtableKey != "pat-secret" || cfg.AirtableBaseIDDC3 != "appDC3" {
		t.Fatalf("secrets not applied: %+v", cfg)
	}
	if cfg.RateLimitPerMinute != 5 {
		t.Fatalf("rateLimitPerMinute = %d, want 5", cfg.RateLimitPerMinute)
	}
	if len(cfg.TrustedProxyCIDRs) != 2 {
		t.Fatalf("trusted proxies = %v", cfg.TrustedProxyCIDRs)
	}
	if cfg.RecordStore != "airtable" || cfg.PushTokenStore != "redis" {
		t.Fatalf("unexpected defaults: %s %s", cfg.RecordStore, cfg.PushTokenStore)
	}
}

func TestLoadRequiresAirtableSecrets(t *testing.T) {
	t.Setenv("AIRTABLE_KEY", "")
	t.Setenv("AIRTABLE_BASE_ID_DC3", "")
	_, err := Load(writeConfig(t, baseConfig))
	if err == nil || !strings.Contains(err.Error(), "AIRTABLE_KEY") {
		t.Fatalf("expected missing airtable key error, got %v", err)
	}
}

func TestLoadMemoryStoreNeedsNoSecrets(t *testing.T) {
	t.Setenv("AIRTABLE_KEY", "")
	cfg, err := Load(writeConfig(t, baseConfig+"recordStore: memory\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RecordStore != "memory" {
		t.Fatalf("recordStore = %q", cfg.RecordStore)
	}
}

func TestLoadRejectsUnknownTokenStore(t *testing.T) {
	_, err := Load(writeConfig(t, baseConfig+"recordStore: memory\npushTokenStore: firestore\n"))
	if err == nil || !strings.Contains(err.Error(), "pushTokenStore") {
		t.Fatalf("expected pushTokenStore error, got %v", err)
	}
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/safety/callable.yaml")
	if got := Path(); got != "/etc/safety/callable.yaml" {
		t.Fatalf("Path() = %q", got)
	}
	t.Setenv("CONFIG_PATH", "")
	if got := Path(); got != ConfigPath {
		t.Fatalf("Path() = %q", got)
	}
}
