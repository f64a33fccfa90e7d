package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  address: ":8080"
database:
  driver: mysql
  url: "user:pass@tcp(localhost:3306)/billing?parseTime=true"
jwt:
  secret: from-file
qr_payment:
  base_url: http://qr.local:4000
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PROVISION_LOCK_TTL_SECONDS", "45")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Database.Driver != "mysql" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Fatalf("env override not applied: %q", cfg.JWT.Secret)
	}
	if cfg.ProvisionLockTTL() != 45*time.Second {
		t.Fatalf("lock ttl = %v", cfg.ProvisionLockTTL())
	}
	if cfg.Billing.Currency != "THB" {
		t.Fatalf("currency default = %q", cfg.Billing.Currency)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PORT", "9000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Database.Driver != "pgx" {
		t.Fatalf("driver default = %q", cfg.Database.Driver)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error without database url")
	}
}

func TestLoadConfigBadInt(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("REDIS_DB", "one")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateDriver(t *testing.T) {
	var cfg Config
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = "file.db"
	cfg.JWT.Secret = "s"
	cfg.QRPay.BaseURL = "http://x"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
