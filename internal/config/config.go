package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MetricsSecret  string        `mapstructure:"metrics_secret"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains the Redis endpoint shared by cache, rate limits, events and asynq.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig holds JWT key material and login throttling knobs.
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
}

// ClamdConfig points at an optional ClamAV daemon used to scan media uploads.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// CheckoutConfig holds the static bank-transfer details shown after an order is placed.
type CheckoutConfig struct {
	VATPercent         float64 `mapstructure:"vat_percent"`
	BankName           string  `mapstructure:"bank_name"`
	BankAccountNumber  string  `mapstructure:"bank_account_number"`
	BankAccountHolder  string  `mapstructure:"bank_account_holder"`
	BankBranch         string  `mapstructure:"bank_branch"`
	OrdersPerHourPerIP int     `mapstructure:"orders_per_hour_per_ip"`
	SellerName         string  `mapstructure:"seller_name"`
	SellerAddress      string  `mapstructure:"seller_address"`
	SellerTaxCode      string  `mapstructure:"seller_tax_code"`
}

// WorkerConfig contains asynq worker settings.
type WorkerConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	MetricsPort   int           `mapstructure:"metrics_port"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from environment variables (with optional defaults).
// A .env file in the working directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cache_ttl", 5*time.Minute)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "infrasite")
	v.SetDefault("database.user", "infrasite")
	v.SetDefault("database.password", "infrasite")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "infrasite")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("checkout.vat_percent", 10)
	v.SetDefault("checkout.bank_name", "Vietcombank")
	v.SetDefault("checkout.bank_branch", "Ho Chi Minh City")
	v.SetDefault("checkout.orders_per_hour_per_ip", 20)
	v.SetDefault("checkout.seller_name", "InfraSite JSC")
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.render_timeout", 30*time.Second)
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                        "API_PORT",
		"api.allowed_origins":             "API_ALLOWED_ORIGINS",
		"api.metrics_secret":              "API_METRICS_SECRET",
		"api.cache_ttl":                   "API_CACHE_TTL",
		"database.host":                   "DATABASE_HOST",
		"database.port":                   "DATABASE_PORT",
		"database.name":                   "POSTGRES_DB",
		"database.user":                   "POSTGRES_USER",
		"database.password":               "POSTGRES_PASSWORD",
		"database.sslmode":                "DATABASE_SSLMODE",
		"redis.host":                      "REDIS_HOST",
		"redis.port":                      "REDIS_PORT",
		"minio.endpoint":                  "MINIO_ENDPOINT",
		"minio.public_endpoint":           "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":             "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":         "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                   "MINIO_USE_SSL",
		"minio.bucket":                    "MINIO_BUCKET",
		"minio.region":                    "MINIO_REGION",
		"minio.bucket_lookup":             "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":        "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_path":           "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":            "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":           "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":          "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour":  "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":       "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":             "LOGIN_LOCK_TTL",
		"auth.cookie_domain":              "COOKIE_DOMAIN",
		"clamd.addr":                      "CLAMD_ADDR",
		"checkout.vat_percent":            "CHECKOUT_VAT_PERCENT",
		"checkout.bank_name":              "CHECKOUT_BANK_NAME",
		"checkout.bank_account_number":    "CHECKOUT_BANK_ACCOUNT_NUMBER",
		"checkout.bank_account_holder":    "CHECKOUT_BANK_ACCOUNT_HOLDER",
		"checkout.bank_branch":            "CHECKOUT_BANK_BRANCH",
		"checkout.orders_per_hour_per_ip": "CHECKOUT_ORDERS_PER_HOUR_PER_IP",
		"checkout.seller_name":            "CHECKOUT_SELLER_NAME",
		"checkout.seller_address":         "CHECKOUT_SELLER_ADDRESS",
		"checkout.seller_tax_code":        "CHECKOUT_SELLER_TAX_CODE",
		"worker.concurrency":              "WORKER_CONCURRENCY",
		"worker.render_timeout":           "WORKER_RENDER_TIMEOUT",
		"worker.metrics_port":             "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList accepts both a real list and a single comma separated env value.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.PrivateKeyPath == "" || cfg.Auth.PublicKeyPath == "" {
		return errors.New("jwt key paths are required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("jwt token ttl must be positive")
	}
	if cfg.Checkout.VATPercent < 0 || cfg.Checkout.VATPercent > 100 {
		return errors.New("checkout vat percent must be within [0, 100]")
	}
	if cfg.Checkout.BankAccountNumber == "" {
		return errors.New("checkout bank account number is required")
	}
	if cfg.Checkout.BankAccountHolder == "" {
		return errors.New("checkout bank account holder is required")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
