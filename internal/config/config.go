package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultConfigPath       = "config/config.yaml"
	defaultAddress          = ":4000"
	defaultDriver           = "pgx"
	defaultGatewayTimeout   = 15 * time.Second
	defaultProvisionLockTTL = 30 * time.Second
	defaultCurrency         = "THB"
	defaultS3Region         = "us-east-1"
)

type Config struct {
	Server struct {
		Address        string   `yaml:"address"`
		AutocertDomain string   `yaml:"autocert_domain"`
		AutocertCache  string   `yaml:"autocert_cache"`
		CORSOrigins    []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
	QRPay struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"qr_payment"`
	Billing struct {
		Currency                string `yaml:"currency"`
		ProvisionLockTTLSeconds int    `yaml:"provision_lock_ttl_seconds"`
	} `yaml:"billing"`
	Firebase struct {
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"firebase"`
	S3 struct {
		Bucket    string `yaml:"bucket"`
		Region    string `yaml:"region"`
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Prefix    string `yaml:"prefix"`
	} `yaml:"s3"`
}

// LoadConfig reads the YAML file named by CONFIG_PATH (default
// config/config.yaml), applies environment overrides and defaults.
// A missing file is not an error; env-only deployments are allowed.
func LoadConfig() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v, err := readIntEnv("REDIS_DB"); err != nil {
		return fmt.Errorf("parse REDIS_DB: %w", err)
	} else if v != nil {
		c.Redis.DB = *v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("QR_PAYMENT_API_URL"); v != "" {
		c.QRPay.BaseURL = v
	}
	if v, err := readIntEnv("QR_PAYMENT_TIMEOUT_SECONDS"); err != nil {
		return fmt.Errorf("parse QR_PAYMENT_TIMEOUT_SECONDS: %w", err)
	} else if v != nil {
		c.QRPay.TimeoutSeconds = *v
	}
	if v, err := readIntEnv("PROVISION_LOCK_TTL_SECONDS"); err != nil {
		return fmt.Errorf("parse PROVISION_LOCK_TTL_SECONDS: %w", err)
	} else if v != nil {
		c.Billing.ProvisionLockTTLSeconds = *v
	}
	if v := os.Getenv("FIREBASE_CREDENTIALS"); v != "" {
		c.Firebase.CredentialsFile = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.S3.SecretKey = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDriver
	}
	if c.QRPay.TimeoutSeconds <= 0 {
		c.QRPay.TimeoutSeconds = int(defaultGatewayTimeout / time.Second)
	}
	if c.Billing.Currency == "" {
		c.Billing.Currency = defaultCurrency
	}
	if c.Billing.ProvisionLockTTLSeconds <= 0 {
		c.Billing.ProvisionLockTTLSeconds = int(defaultProvisionLockTTL / time.Second)
	}
	if c.S3.Region == "" {
		c.S3.Region = defaultS3Region
	}
	if c.Server.AutocertCache == "" {
		c.Server.AutocertCache = "certs"
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "pgx", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database url is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("jwt secret is required")
	}
	if strings.TrimSpace(c.QRPay.BaseURL) == "" {
		return errors.New("qr payment base url is required")
	}
	return nil
}

// GatewayTimeout is the HTTP timeout for QR gateway calls.
func (c Config) GatewayTimeout() time.Duration {
	return time.Duration(c.QRPay.TimeoutSeconds) * time.Second
}

// ProvisionLockTTL bounds how long a provisioning lock is held.
func (c Config) ProvisionLockTTL() time.Duration {
	return time.Duration(c.Billing.ProvisionLockTTLSeconds) * time.Second
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
