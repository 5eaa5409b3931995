package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" || c.Cache.Kind != "memory" {
		t.Errorf("driver = %q, cache = %q", c.Storage.Driver, c.Cache.Kind)
	}
	if c.JWT.Issuer != c.Server.BaseURL {
		t.Errorf("issuer = %q, want base_url fallback", c.JWT.Issuer)
	}
	if c.JWT.Audience != "llavero-api" {
		t.Errorf("audience = %q", c.JWT.Audience)
	}
	if c.Auth.Session.CookieName != "llavero_sid" {
		t.Errorf("cookie = %q", c.Auth.Session.CookieName)
	}
	if got := Duration(c.JWT.AccessTTL); got != time.Hour {
		t.Errorf("access_ttl = %v", got)
	}
	if got := Duration(c.JWT.RefreshTTL); got != 720*time.Hour {
		t.Errorf("refresh_ttl = %v", got)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9999"
  base_url: "https://auth.example.com"
storage:
  driver: postgres
  dsn: "postgres://localhost/llavero"
jwt:
  issuer: "https://auth.example.com"
  access_ttl: "30m"
  keys_file: "keys/signing.json"
rate:
  enabled: true
  token:
    limit: 10
    window: "30s"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":9999" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "postgres" {
		t.Errorf("driver = %q", c.Storage.Driver)
	}
	if c.JWT.AccessTTL != "30m" {
		t.Errorf("access_ttl = %q", c.JWT.AccessTTL)
	}
	if !c.Rate.Enabled || c.Rate.Token.Limit != 10 {
		t.Errorf("rate = %+v", c.Rate)
	}
	// keys_file relativo se resuelve contra el directorio del YAML.
	want := filepath.Join(dir, "keys", "signing.json")
	if c.JWT.KeysFile != want {
		t.Errorf("keys_file = %q, want %q", c.JWT.KeysFile, want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7777")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "postgres://env/llavero")
	t.Setenv("JWT_AUDIENCE", "env-api")
	t.Setenv("RATE_ENABLED", "true")
	t.Setenv("RATE_TOKEN_LIMIT", "5")
	t.Setenv("SERVER_CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":7777" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.DSN != "postgres://env/llavero" {
		t.Errorf("dsn = %q", c.Storage.DSN)
	}
	if c.JWT.Audience != "env-api" {
		t.Errorf("audience = %q", c.JWT.Audience)
	}
	if !c.Rate.Enabled || c.Rate.Token.Limit != 5 {
		t.Errorf("rate = %+v", c.Rate)
	}
	if len(c.Server.CORSAllowedOrigins) != 2 || c.Server.CORSAllowedOrigins[1] != "https://b.test" {
		t.Errorf("cors = %v", c.Server.CORSAllowedOrigins)
	}
	if c.Log.Level != "debug" {
		t.Errorf("log level = %q", c.Log.Level)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("JWT_ACCESS_TTL", "not-a-duration")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
