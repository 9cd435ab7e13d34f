package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 4001
  prefix: "api"
  default_version: 1
auth:
  access_token_ttl: 300
  refresh_token_ttl: 3600
  keys:
    directory: "/tmp/keys"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Auth.Keys.Directory != "/tmp/keys" {
		t.Errorf("Auth.Keys.Directory = %q, want %q", cfg.Auth.Keys.Directory, "/tmp/keys")
	}
}

func TestLoad_Defaults(t *testing.T) {
	// A minimal file should leave the defaults in place.
	cfg, err := Load(writeConfig(t, `site: {id: "s1"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.AccessTokenTTL != 300 {
		t.Errorf("default AccessTokenTTL = %d, want 300", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 3600 {
		t.Errorf("default RefreshTokenTTL = %d, want 3600", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.API.Prefix != "api" {
		t.Errorf("default API.Prefix = %q, want %q", cfg.API.Prefix, "api")
	}
	if cfg.API.DefaultVersion != 1 {
		t.Errorf("default API.DefaultVersion = %d, want 1", cfg.API.DefaultVersion)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LUMINA_ACCESS_TOKEN_TTL", "120")
	t.Setenv("LUMINA_KEY_DIRECTORY", "/secure/keys")

	cfg, err := Load(writeConfig(t, `site: {id: "s1"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.AccessTokenTTL != 120 {
		t.Errorf("AccessTokenTTL = %d, want 120 (env override)", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.Keys.Directory != "/secure/keys" {
		t.Errorf("Keys.Directory = %q, want %q (env override)", cfg.Auth.Keys.Directory, "/secure/keys")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "empty site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "prefix with slash",
			mutate:  func(c *Config) { c.API.Prefix = "/api/" },
			wantErr: true,
		},
		{
			name:    "zero access ttl",
			mutate:  func(c *Config) { c.Auth.AccessTokenTTL = 0 },
			wantErr: true,
		},
		{
			name:    "empty key directory",
			mutate:  func(c *Config) { c.Auth.Keys.Directory = "" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "influx enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Token = ""
			},
			wantErr: true,
		},
		{
			name:    "smtp enabled without host",
			mutate:  func(c *Config) { c.SMTP.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizedPrefix(t *testing.T) {
	api := APIConfig{Prefix: "api"}
	if got := api.NormalizedPrefix(); got != "api" {
		t.Errorf("NormalizedPrefix() = %q, want %q", got, "api")
	}
}
