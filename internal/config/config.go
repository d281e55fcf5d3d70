// Package config loads the judge configuration from a flat key/value file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config is the process-wide judge configuration.
type Config struct {
	// SecretKey signs session tokens.
	SecretKey string
	// AdminPasswordHash is the bcrypt hash of the administrator password.
	AdminPasswordHash string
	// MaxChecks bounds concurrent sandbox runs and sizes the worker pool.
	MaxChecks int
	Host      string
	Port      string
	// DBPath is the sqlite database file.
	DBPath string
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		SecretKey: "change-me",
		MaxChecks: 20,
		Host:      "0.0.0.0",
		Port:      "8080",
		DBPath:    "judge.db",
	}
}

// Load reads path (ignored if missing) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AdminPasswordHash = v
	}
	if v := os.Getenv("MAX_CHECKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("MAX_CHECKS must be a positive integer, got %q", v)
		}
		cfg.MaxChecks = n
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	return cfg, nil
}

// CheckAdminPassword compares a plaintext password against the configured
// bcrypt hash.
func (c Config) CheckAdminPassword(password string) bool {
	if c.AdminPasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.AdminPasswordHash), []byte(password)) == nil
}

// Addr is the host:port listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
