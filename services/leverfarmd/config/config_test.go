package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leverfarmd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
pool_address: "lvrm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqypv4sr5"
workers:
  - address: "lvrm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqzqf7yv4u"
    strategy: vault
    base_symbol: base
    asset_symbol: vault
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("listen default %q", cfg.ListenAddress)
	}
	if cfg.DataDir != "./leverfarm-data" {
		t.Fatalf("data dir default %q", cfg.DataDir)
	}
	if cfg.Workers[0].MaxPriceAge != 3600 {
		t.Fatalf("max price age default %d", cfg.Workers[0].MaxPriceAge)
	}
}

func TestLoadNormalizesPausedModules(t *testing.T) {
	path := writeConfig(t, `
pool_address: "lvrm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqypv4sr5"
paused_modules:
  - " Leverage "
  - ""
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.PausedModules) != 1 || cfg.PausedModules[0] != "leverage" {
		t.Fatalf("paused modules %v", cfg.PausedModules)
	}
}

func TestLoadRejectsMissingPool(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected missing pool rejection")
	}
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, `
pool_address: "lvrm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqypv4sr5"
workers:
  - address: "lvrm1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqzqf7yv4u"
    strategy: martingale
    base_symbol: base
    asset_symbol: vault
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected strategy rejection")
	}
}
