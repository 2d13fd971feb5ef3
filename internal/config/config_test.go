package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiln.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("KILN_TEST_DSN", "postgres://kiln:secret@db:5432/kiln")

	path := writeConfig(t, `{
		"server": {"port": ${KILN_TEST_PORT:9090}, "log_level": "${KILN_TEST_LOG:debug}"},
		"database": {"postgres": {"dsn": "${KILN_TEST_DSN}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want default 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Database.Postgres.DSN != "postgres://kiln:secret@db:5432/kiln" {
		t.Errorf("dsn = %q", cfg.Database.Postgres.DSN)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("KILN_TEST_PORT", "7070")

	path := writeConfig(t, `{"server": {"port": ${KILN_TEST_PORT:9090}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070 from env", cfg.Server.Port)
	}
}

func TestLoadAppliesPathDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.Templates != "data/templates" {
		t.Errorf("templates path = %q", cfg.Paths.Templates)
	}
	if cfg.Paths.Sandbox != "data/sandbox" {
		t.Errorf("sandbox path = %q", cfg.Paths.Sandbox)
	}
	if cfg.Paths.Migrations != "migrations" {
		t.Errorf("migrations path = %q", cfg.Paths.Migrations)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
