// Package config loads process configuration once at startup. Values come
// from an optional YAML file and are then overridden by the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is treated as immutable after Load returns.
type Config struct {
	DatabaseDSN string `yaml:"db_dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	Port        string `yaml:"port"`

	// Secrets are only read from the environment.
	JWTSecret          string   `yaml:"-"`
	JWTSecretFile      string   `yaml:"jwt_secret_file"`
	JWTPreviousSecrets []string `yaml:"-"`

	RazorpayKeyID     string `yaml:"razorpay_key_id"`
	RazorpayKeySecret string `yaml:"-"`

	ReportDir            string `yaml:"report_dir"`
	StaticDir            string `yaml:"static_dir"`
	CORSOrigin           string `yaml:"cors_origin"`
	PaymentRatePerMinute int    `yaml:"payment_rate_per_minute"`
	CookieSecure         bool   `yaml:"cookie_secure"`
}

func defaults() *Config {
	return &Config{
		AutoMigrate:          true,
		Port:                 "5500",
		ReportDir:            filepath.Join(os.TempDir(), "spendtrack-reports"),
		StaticDir:            "public",
		CORSOrigin:           "http://localhost:5500",
		PaymentRatePerMinute: 10,
	}
}

// Load reads the YAML file at path (skipped when path is empty) and applies
// environment overrides. Missing required settings are reported together.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.DatabaseDSN = getEnvString("DB_DSN", cfg.DatabaseDSN)
	cfg.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.Port = getEnvString("PORT", cfg.Port)
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.JWTSecretFile = getEnvString("JWT_SECRET_FILE", cfg.JWTSecretFile)
	cfg.JWTPreviousSecrets = splitList(os.Getenv("JWT_PREVIOUS_SECRETS"))
	cfg.RazorpayKeyID = getEnvString("RAZORPAY_KEY_ID", cfg.RazorpayKeyID)
	cfg.RazorpayKeySecret = os.Getenv("RAZORPAY_KEY_SECRET")
	cfg.ReportDir = getEnvString("REPORT_DIR", cfg.ReportDir)
	cfg.StaticDir = getEnvString("STATIC_DIR", cfg.StaticDir)
	cfg.CORSOrigin = getEnvString("CORS_ORIGIN", cfg.CORSOrigin)
	cfg.PaymentRatePerMinute = getEnvInt("RATE_LIMIT_PAYMENT", cfg.PaymentRatePerMinute)
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", cfg.CookieSecure)

	var missing []string
	if cfg.DatabaseDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.JWTSecret == "" && cfg.JWTSecretFile == "" {
		missing = append(missing, "JWT_SECRET or JWT_SECRET_FILE")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required settings are not set: %v", missing)
	}
	// staged reports must never be reachable through the static route
	if cfg.StaticDir != "" && within(cfg.ReportDir, cfg.StaticDir) {
		return nil, fmt.Errorf("REPORT_DIR %q must not be inside STATIC_DIR %q", cfg.ReportDir, cfg.StaticDir)
	}
	return cfg, nil
}

func within(dir, root string) bool {
	d, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	r, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(r, d)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return defaultVal
	case "false", "0", "no":
		return false
	default:
		return true
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
