package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Defaults() must validate cleanly, got: %v", err)
	}
}

func TestValidate_UnsupportedSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	err := Validate(&cfg)
	if err == nil || !strings.Contains(err.Error(), "schema_version") {
		t.Fatalf("got %v, want schema_version error", err)
	}
}

func TestValidate_FetchBatchSizeOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.NATS.FetchBatchSize = 0
	if err := Validate(&cfg); err == nil || !strings.Contains(err.Error(), "fetch_batch_size") {
		t.Fatalf("got %v, want fetch_batch_size error", err)
	}
}

func TestValidate_MaxIdleExceedsMaxOpen(t *testing.T) {
	cfg := Defaults()
	cfg.Store.MaxOpenConns = 2
	cfg.Store.MaxIdleConns = 5
	if err := Validate(&cfg); err == nil || !strings.Contains(err.Error(), "max_idle_conns") {
		t.Fatalf("got %v, want max_idle_conns error", err)
	}
}

func TestValidate_TLSEnabledRequiresFiles(t *testing.T) {
	cfg := Defaults()
	cfg.NATS.TLS.Enabled = true
	if err := Validate(&cfg); err == nil || !strings.Contains(err.Error(), "nats.tls") {
		t.Fatalf("got %v, want nats.tls error", err)
	}
}

func TestValidate_AggregatesMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "bogus"
	cfg.NodeID = ""
	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "schema_version") || !strings.Contains(err.Error(), "node_id") {
		t.Errorf("expected both errors aggregated, got: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
schema_version: "1"
node_id: test-node
nats:
  url: nats://example:4222
observability:
  log_level: debug
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != "test-node" {
		t.Errorf("node_id = %q, want test-node", cfg.NodeID)
	}
	if cfg.NATS.URL != "nats://example:4222" {
		t.Errorf("nats.url = %q, want nats://example:4222", cfg.NATS.URL)
	}
	// Unset fields retain defaults.
	if cfg.NATS.Stream != "FERMENTCTL" {
		t.Errorf("nats.stream = %q, want default FERMENTCTL", cfg.NATS.Stream)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("observability.log_level = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
schema_version: "99"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for schema_version 99")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
