package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aivora/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "http://localhost:5000/api" {
		t.Fatalf("base url: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second || cfg.API.GenerationTimeout != 2*time.Minute {
		t.Fatalf("timeouts: %v / %v", cfg.API.Timeout, cfg.API.GenerationTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("level: %q", cfg.Log.Level)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	body := "api:\n  base_url: https://aivora.example/api\n  timeout: 5s\n"
	if err := os.WriteFile(filepath.Join(dir, "aivora.yml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "https://aivora.example/api" {
		t.Fatalf("base url: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Fatalf("timeout: %v", cfg.API.Timeout)
	}
	// Unset fields keep their defaults.
	if cfg.API.GenerationTimeout != 2*time.Minute || cfg.Log.Level != "info" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty base url", "api:\n  base_url: \"\"\n"},
		{"unknown level", "log:\n  level: chatty\n"},
		{"generation shorter than timeout", "api:\n  timeout: 30s\n  generation_timeout: 10s\n"},
		{"malformed yaml", "api: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.FromYAML([]byte(tc.yaml)); err == nil {
				t.Fatalf("want error for %q", tc.yaml)
			}
		})
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != *config.Default() {
		t.Fatalf("template drifted from defaults: %+v", cfg)
	}
}
