package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the VoiceVault server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir              string
	HTTPPort             int
	StorageQuotaGB       int    // maximum aggregate recording storage in GiB
	DefaultRetentionDays int    // fallback retention when no policy matches
	AlertThresholdPct    int    // storage usage percentage that triggers an alert
	EncryptionKey        string // 32-byte hex-encoded key for AES-256-GCM at-rest encryption
	EncryptionKeyID      string // logical key identifier stored with each recording
	JWTSecret            string // hex-encoded 32-byte secret for API JWT signing
	SMTPHost             string
	SMTPPort             int
	SMTPUser             string
	SMTPPassword         string
	AlertFrom            string // sender address for storage alerts and reports
	AlertTo              string // recipient address for storage alerts and reports
	LogLevel             string
	LogFormat            string // log output format: "text" or "json"
}

// defaults
const (
	defaultDataDir           = "./data"
	defaultHTTPPort          = 8080
	defaultStorageQuotaGB    = 50
	defaultRetentionDays     = 90
	defaultAlertThresholdPct = 80
	defaultEncryptionKeyID   = "primary"
	defaultSMTPPort          = 587
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
)

// envPrefix is the prefix for all VoiceVault environment variables.
const envPrefix = "VOICEVAULT_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("voicevault", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database and recording storage")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.IntVar(&cfg.StorageQuotaGB, "storage-quota-gb", defaultStorageQuotaGB, "maximum aggregate recording storage in GiB")
	fs.IntVar(&cfg.DefaultRetentionDays, "default-retention-days", defaultRetentionDays, "fallback retention period when no policy applies")
	fs.IntVar(&cfg.AlertThresholdPct, "alert-threshold-pct", defaultAlertThresholdPct, "storage usage percentage that triggers an alert notification")
	fs.StringVar(&cfg.EncryptionKey, "encryption-key", "", "hex-encoded 32-byte key for AES-256-GCM encryption of recordings")
	fs.StringVar(&cfg.EncryptionKeyID, "encryption-key-id", defaultEncryptionKeyID, "logical identifier for the active encryption key")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for API JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", "", "SMTP server hostname for alert delivery (alerts disabled if empty)")
	fs.IntVar(&cfg.SMTPPort, "smtp-port", defaultSMTPPort, "SMTP server port")
	fs.StringVar(&cfg.SMTPUser, "smtp-user", "", "SMTP authentication username")
	fs.StringVar(&cfg.SMTPPassword, "smtp-password", "", "SMTP authentication password")
	fs.StringVar(&cfg.AlertFrom, "alert-from", "", "sender address for storage alerts and daily reports")
	fs.StringVar(&cfg.AlertTo, "alert-to", "", "recipient address for storage alerts and daily reports")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":               envPrefix + "DATA_DIR",
		"http-port":              envPrefix + "HTTP_PORT",
		"storage-quota-gb":       envPrefix + "STORAGE_QUOTA_GB",
		"default-retention-days": envPrefix + "DEFAULT_RETENTION_DAYS",
		"alert-threshold-pct":    envPrefix + "ALERT_THRESHOLD_PCT",
		"encryption-key":         envPrefix + "ENCRYPTION_KEY",
		"encryption-key-id":      envPrefix + "ENCRYPTION_KEY_ID",
		"jwt-secret":             envPrefix + "JWT_SECRET",
		"smtp-host":              envPrefix + "SMTP_HOST",
		"smtp-port":              envPrefix + "SMTP_PORT",
		"smtp-user":              envPrefix + "SMTP_USER",
		"smtp-password":          envPrefix + "SMTP_PASSWORD",
		"alert-from":             envPrefix + "ALERT_FROM",
		"alert-to":               envPrefix + "ALERT_TO",
		"log-level":              envPrefix + "LOG_LEVEL",
		"log-format":             envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "storage-quota-gb":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.StorageQuotaGB = v
			}
		case "default-retention-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.DefaultRetentionDays = v
			}
		case "alert-threshold-pct":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.AlertThresholdPct = v
			}
		case "encryption-key":
			cfg.EncryptionKey = val
		case "encryption-key-id":
			cfg.EncryptionKeyID = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "smtp-host":
			cfg.SMTPHost = val
		case "smtp-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SMTPPort = v
			}
		case "smtp-user":
			cfg.SMTPUser = val
		case "smtp-password":
			cfg.SMTPPassword = val
		case "alert-from":
			cfg.AlertFrom = val
		case "alert-to":
			cfg.AlertTo = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.StorageQuotaGB < 1 {
		return fmt.Errorf("storage-quota-gb must be positive, got %d", c.StorageQuotaGB)
	}
	if c.DefaultRetentionDays < 1 {
		return fmt.Errorf("default-retention-days must be positive, got %d", c.DefaultRetentionDays)
	}
	if c.AlertThresholdPct < 1 || c.AlertThresholdPct > 100 {
		return fmt.Errorf("alert-threshold-pct must be between 1 and 100, got %d", c.AlertThresholdPct)
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("encryption-key is required (64 hex characters)")
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}
	if c.EncryptionKeyID == "" {
		return fmt.Errorf("encryption-key-id must not be empty")
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("smtp-port must be between 1 and 65535, got %d", c.SMTPPort)
	}
	// Alert delivery needs both addresses once SMTP is configured.
	if c.SMTPHost != "" && (c.AlertFrom == "" || c.AlertTo == "") {
		return fmt.Errorf("alert-from and alert-to are required when smtp-host is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// StorageQuotaBytes returns the configured quota in bytes.
func (c *Config) StorageQuotaBytes() int64 {
	return int64(c.StorageQuotaGB) * 1024 * 1024 * 1024
}

// EncryptionKeyBytes returns the decoded 32-byte encryption key.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
