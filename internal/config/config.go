// Package config loads process configuration from a YAML file with
// environment overrides. Request-scoped secrets live in the vault, not
// here; the one secret this file carries is the vault master key itself.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	MySQLDSN  string `yaml:"mysql_dsn"`
	RedisAddr string `yaml:"redis_addr"`

	// VaultMasterKey is hex-encoded; 64 hex characters for AES-256.
	VaultMasterKey string `yaml:"vault_master_key"`

	AdminToken string `yaml:"admin_token"`

	Currency     string `yaml:"currency"`
	MailFromName string `yaml:"mail_from_name"`

	MailQueueSize int `yaml:"mail_queue_size"`
	MailWorkers   int `yaml:"mail_workers"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		MySQLDSN:        "root:root@tcp(localhost:3306)/atelier?parseTime=true",
		RedisAddr:       "localhost:6379",
		Currency:        "EUR",
		MailFromName:    "Atelier",
		MailQueueSize:   256,
		MailWorkers:     2,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file is absent), then applies ATELIER_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	overrideString(&cfg.HTTPAddr, "ATELIER_HTTP_ADDR")
	overrideString(&cfg.MySQLDSN, "ATELIER_MYSQL_DSN")
	overrideString(&cfg.RedisAddr, "ATELIER_REDIS_ADDR")
	overrideString(&cfg.VaultMasterKey, "ATELIER_VAULT_MASTER_KEY")
	overrideString(&cfg.AdminToken, "ATELIER_ADMIN_TOKEN")
	overrideString(&cfg.Currency, "ATELIER_CURRENCY")
	overrideString(&cfg.MailFromName, "ATELIER_MAIL_FROM_NAME")
	overrideInt(&cfg.MailQueueSize, "ATELIER_MAIL_QUEUE_SIZE")
	overrideInt(&cfg.MailWorkers, "ATELIER_MAIL_WORKERS")

	return &cfg, nil
}

// DecodeMasterKey decodes and validates the vault master key.
func (c *Config) DecodeMasterKey() ([]byte, error) {
	if c.VaultMasterKey == "" {
		return nil, fmt.Errorf("vault master key is not set")
	}
	key, err := hex.DecodeString(c.VaultMasterKey)
	if err != nil {
		return nil, fmt.Errorf("vault master key must be hex: %w", err)
	}
	return key, nil
}

func overrideString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
