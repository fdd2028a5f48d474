package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
server:
  addr: "127.0.0.1:9100"
user:
  id: "user-42"
backend:
  base_url: "https://api.example.com"
  api_key: "backend-key"
  timeout: "5s"
generation:
  base_url: "https://gen.example.com"
  timeout: "15s"
  rate: 2
fragment:
  max_len: 120
  thinking_delay: "900ms"
metadata:
  debounce: "250ms"
cache:
  path: "/tmp/cadence-cache"
  max_size: "64MB"
retention:
  enabled: true
  cron: "0 4 * * *"
  max_age: "168h"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9100" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Backend.Timeout.Std() != 5*time.Second {
		t.Fatalf("backend timeout = %v", cfg.Backend.Timeout.Std())
	}
	if cfg.Fragment.ThinkingDelay.Std() != 900*time.Millisecond {
		t.Fatalf("thinking delay = %v", cfg.Fragment.ThinkingDelay.Std())
	}
	if cfg.Cache.MaxSize != 64*1000*1000 {
		t.Fatalf("max size = %d", cfg.Cache.MaxSize)
	}
	// untouched values fall back to defaults
	if cfg.Generation.Burst != 3 {
		t.Fatalf("burst default = %d", cfg.Generation.Burst)
	}
	if cfg.Queue.Capacity != 4*1024 {
		t.Fatalf("queue capacity default = %d", cfg.Queue.Capacity)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CADENCE_BACKEND_URL", "https://override.example.com")
	t.Setenv("CADENCE_GEN_TIMEOUT", "3s")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "https://override.example.com" {
		t.Fatalf("backend url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Generation.Timeout.Std() != 3*time.Second {
		t.Fatalf("generation timeout = %v", cfg.Generation.Timeout.Std())
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	if _, err := Load(writeConfig(t, "server:\n  addr: \":1\"\n")); err == nil {
		t.Fatal("expected error for missing user/backend/generation settings")
	}
}

func TestLoadRejectsBadCron(t *testing.T) {
	p := writeConfig(t, `
user:
  id: "u"
backend:
  base_url: "https://b"
generation:
  base_url: "https://g"
retention:
  enabled: true
  cron: "not a cron"
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	p := writeConfig(t, `
user:
  id: "u"
backend:
  base_url: "https://b"
  timeout: "five seconds"
generation:
  base_url: "https://g"
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
