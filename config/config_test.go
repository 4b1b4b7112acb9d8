package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/modreg/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
repository:
  path: "/srv/modreg"
  schemas_dir: "schemas"
  data_dir: "/var/lib/modreg"
registry:
  file: "state/registry.mpk"
replay:
  dsn: ":memory:"
logging:
  level: "debug"
  format: "json"
metrics:
  textfile: "/var/lib/node_exporter/modreg.prom"
`

	cfg := writeAndLoad(t, content)

	if cfg.Repository.SchemasDir != "/srv/modreg/schemas" {
		t.Errorf("SchemasDir = %s, want /srv/modreg/schemas", cfg.Repository.SchemasDir)
	}
	if cfg.Repository.DataDir != "/var/lib/modreg" {
		t.Errorf("DataDir = %s, want /var/lib/modreg", cfg.Repository.DataDir)
	}
	if cfg.Registry.File != "/srv/modreg/state/registry.mpk" {
		t.Errorf("Registry.File = %s, want /srv/modreg/state/registry.mpk", cfg.Registry.File)
	}
	if cfg.Replay.DSN != ":memory:" {
		t.Errorf("Replay.DSN = %s, want :memory:", cfg.Replay.DSN)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if cfg.Metrics.Textfile != "/var/lib/node_exporter/modreg.prom" {
		t.Errorf("Metrics.Textfile = %s", cfg.Metrics.Textfile)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "repository:\n  path: /srv/modreg\n")

	tests := []struct {
		name, got, want string
	}{
		{"schemas_dir", cfg.Repository.SchemasDir, "/srv/modreg/yang"},
		{"data_dir", cfg.Repository.DataDir, "/srv/modreg/data"},
		{"registry.file", cfg.Registry.File, "/srv/modreg/registry.mpk"},
		{"lock.file", cfg.Lock.File, "/srv/modreg/registry.lock"},
		{"replay.dsn", cfg.Replay.DSN, "/srv/modreg/notif.db"},
		{"logging.level", cfg.Logging.Level, "info"},
		{"logging.format", cfg.Logging.Format, "console"},
		{"metrics.textfile", cfg.Metrics.Textfile, ""},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("default %s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_MODREG_ROOT", "/opt/repo")

	cfg := writeAndLoad(t, "repository:\n  path: \"${TEST_MODREG_ROOT}\"\n")

	if cfg.Repository.Path != "/opt/repo" {
		t.Errorf("Repository.Path = %s, want /opt/repo", cfg.Repository.Path)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MODREG_LOG_LEVEL", "error")
	t.Setenv("MODREG_LOCK_FILE", "/run/modreg.lock")

	content := `
repository:
  path: "/srv/modreg"
logging:
  level: "info"
`

	cfg := writeAndLoad(t, content)

	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %s, want error (env override)", cfg.Logging.Level)
	}
	if cfg.Lock.File != "/run/modreg.lock" {
		t.Errorf("Lock.File = %s, want /run/modreg.lock", cfg.Lock.File)
	}
	if cfg.Repository.Path != "/srv/modreg" {
		t.Errorf("Repository.Path = %s, want /srv/modreg", cfg.Repository.Path)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MODREG_REPOSITORY_PATH", "/env/repo")
	t.Setenv("MODREG_LOG_FORMAT", "json")
	t.Setenv("MODREG_METRICS_TEXTFILE", "/tmp/modreg.prom")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.Registry.File != "/env/repo/registry.mpk" {
		t.Errorf("Registry.File = %s, want /env/repo/registry.mpk", cfg.Registry.File)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s, want json", cfg.Logging.Format)
	}
	if cfg.Metrics.Textfile != "/tmp/modreg.prom" {
		t.Errorf("Metrics.Textfile = %s, want /tmp/modreg.prom", cfg.Metrics.Textfile)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Setenv("MODREG_REPOSITORY_PATH", "/env/repo")

	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Repository.Path != "/env/repo" {
		t.Errorf("Repository.Path = %s, want /env/repo", cfg.Repository.Path)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"level", "logging:\n  level: verbose\n", "logging.level"},
		{"format", "logging:\n  format: xml\n", "logging.format"},
		{"lock on registry", "registry:\n  file: a.mpk\nlock:\n  file: a.mpk\n", "lock.file"},
		{"yaml", "repository: [\n", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load("/nonexistent/modreg.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "modreg.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return config.Load(path)
}
