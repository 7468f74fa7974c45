package infra

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfigYAML = `
providers:
  goldapi:
    base_url: "https://www.goldapi.io"
    api_key: "file-key"
  metalsdev:
    base_url: "https://api.metals.dev"
aggregator:
  primary: "goldapi"
  fallback: "metalsdev"
sync:
  currency: "USD"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Aggregator.RetryAttempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.Aggregator.RetryAttempts)
	}
	if cfg.Aggregator.CacheTTLSec != 300 {
		t.Errorf("expected default cache TTL 300, got %d", cfg.Aggregator.CacheTTLSec)
	}
	if cfg.Sync.Schedule != "0 6 * * *" {
		t.Errorf("expected default schedule, got %s", cfg.Sync.Schedule)
	}
	if cfg.Sync.FreshnessHorizonHrs != 24 {
		t.Errorf("expected default freshness horizon 24, got %d", cfg.Sync.FreshnessHorizonHrs)
	}
	if cfg.Broadcast.MaxConnections != 256 {
		t.Errorf("expected default max connections 256, got %d", cfg.Broadcast.MaxConnections)
	}
	if cfg.Providers.GoldAPI.Timeout().Seconds() != 10 {
		t.Errorf("expected default timeout 10s, got %v", cfg.Providers.GoldAPI.Timeout())
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("METALS_GOLDAPI_KEY", "env-key")
	t.Setenv("METALS_PRIMARY_PROVIDER", "metalsdev")

	cfg, err := LoadConfig(writeTestConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Providers.GoldAPI.APIKey != "env-key" {
		t.Errorf("expected env override, got %s", cfg.Providers.GoldAPI.APIKey)
	}
	if cfg.Aggregator.Primary != "metalsdev" {
		t.Errorf("expected primary override, got %s", cfg.Aggregator.Primary)
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	bad := testConfigYAML + `
broadcast:
  currency: "USD"
`
	cfg, err := LoadConfig(writeTestConfig(t, bad))
	if err != nil {
		t.Fatalf("baseline config should load: %v", err)
	}
	_ = cfg

	unknown := `
providers:
  goldapi:
    base_url: "https://www.goldapi.io"
  metalsdev:
    base_url: "https://api.metals.dev"
aggregator:
  primary: "bloomberg"
`
	if _, err := LoadConfig(writeTestConfig(t, unknown)); err == nil {
		t.Error("expected error for unknown primary provider")
	}
}

func TestLoadConfigRejectsStoreOnlySyncProvider(t *testing.T) {
	cfgYAML := `
providers:
  goldapi:
    base_url: "https://www.goldapi.io"
  metalsdev:
    base_url: "https://api.metals.dev"
sync:
  provider: "store-only"
`
	if _, err := LoadConfig(writeTestConfig(t, cfgYAML)); err == nil {
		t.Error("sync provider must be a live provider")
	}
}

func TestKnownProvider(t *testing.T) {
	for _, name := range []string{ProviderGoldAPI, ProviderMetalsDev, StoreOnly} {
		if !KnownProvider(name) {
			t.Errorf("%s should be known", name)
		}
	}
	if KnownProvider("bloomberg") {
		t.Error("bloomberg should not be known")
	}
}
