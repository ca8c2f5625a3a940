package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendFile  = "file"
	BackendMySQL = "mysql"
	BackendRedis = "redis"
)

type Config struct {
	Port              string   `yaml:"port"`
	JWTSecret         string   `yaml:"jwt_secret"`
	RedisURL          string   `yaml:"redis_url"`
	MySQLDSN          string   `yaml:"mysql_dsn"`
	SnapshotBackend   string   `yaml:"snapshot_backend"`
	SnapshotPath      string   `yaml:"snapshot_path"`
	SnapshotKey       string   `yaml:"snapshot_key"`
	SnapshotKeep      int      `yaml:"snapshot_keep"`
	CheckpointSeconds int      `yaml:"checkpoint_seconds"`
	AdminAddresses    []string `yaml:"admin_addresses"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	RateLimit         int      `yaml:"rate_limit"`
	RateWindowSeconds int      `yaml:"rate_window_seconds"`
	EnableSSL         bool     `yaml:"enable_ssl"`
	SSLCert           string   `yaml:"ssl_cert"`
	SSLKey            string   `yaml:"ssl_key"`
	LogLevel          string   `yaml:"log_level"`
}

func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointSeconds) * time.Second
}

func (c Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

func (c Config) IsAdmin(addr string) bool {
	for _, a := range c.AdminAddresses {
		if a == addr {
			return true
		}
	}
	return false
}

func defaults() Config {
	return Config{
		Port:              "8080",
		RedisURL:          "redis://localhost:6379/0",
		SnapshotBackend:   BackendFile,
		SnapshotPath:      "/var/lib/govledger/ledger.snapshot",
		SnapshotKey:       "govledger:snapshot",
		SnapshotKeep:      10,
		CheckpointSeconds: 300,
		AllowedOrigins:    []string{"http://localhost:3000"},
		RateLimit:         60,
		RateWindowSeconds: 60,
		LogLevel:          "info",
	}
}

// Load builds the config from defaults, the optional YAML file named by
// LEDGER_CONFIG and finally the environment, then validates it.
func Load() (Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

// FromEnv is Load without validation, for tools that need only part of the
// settings.
func FromEnv() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getenv("PORT", cfg.Port)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.MySQLDSN = getenv("MYSQL_DSN", cfg.MySQLDSN)
	cfg.SnapshotBackend = strings.ToLower(getenv("SNAPSHOT_BACKEND", cfg.SnapshotBackend))
	cfg.SnapshotPath = getenv("SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.SnapshotKey = getenv("SNAPSHOT_KEY", cfg.SnapshotKey)
	cfg.SnapshotKeep = getint("SNAPSHOT_KEEP", cfg.SnapshotKeep)
	cfg.CheckpointSeconds = getint("CHECKPOINT_SECONDS", cfg.CheckpointSeconds)
	cfg.AdminAddresses = getlist("ADMIN_ADDRESSES", cfg.AdminAddresses)
	cfg.AllowedOrigins = getlist("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.RateLimit = getint("RATE_LIMIT", cfg.RateLimit)
	cfg.RateWindowSeconds = getint("RATE_WINDOW_SECONDS", cfg.RateWindowSeconds)
	cfg.EnableSSL = getbool("ENABLE_SSL", cfg.EnableSSL)
	cfg.SSLCert = getenv("SSL_CERT", cfg.SSLCert)
	cfg.SSLKey = getenv("SSL_KEY", cfg.SSLKey)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("missing env JWT_SECRET"))
	}
	switch c.SnapshotBackend {
	case BackendFile:
		if c.SnapshotPath == "" {
			errs = append(errs, errors.New("file snapshot backend needs SNAPSHOT_PATH"))
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("mysql snapshot backend needs MYSQL_DSN"))
		}
	case BackendRedis:
		if c.SnapshotKey == "" {
			errs = append(errs, errors.New("redis snapshot backend needs SNAPSHOT_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown snapshot backend %q", c.SnapshotBackend))
	}
	if c.EnableSSL && (c.SSLCert == "" || c.SSLKey == "") {
		errs = append(errs, errors.New("ENABLE_SSL needs SSL_CERT and SSL_KEY"))
	}
	if c.CheckpointSeconds < 1 {
		errs = append(errs, errors.New("CHECKPOINT_SECONDS must be positive"))
	}
	if c.RateLimit < 1 || c.RateWindowSeconds < 1 {
		errs = append(errs, errors.New("rate limit and window must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if i, err := strconv.Atoi(getenv(key, "")); err == nil {
		return i
	}
	return def
}

func getbool(key string, def bool) bool {
	if b, err := strconv.ParseBool(getenv(key, "")); err == nil {
		return b
	}
	return def
}

func getlist(key string, def []string) []string {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
