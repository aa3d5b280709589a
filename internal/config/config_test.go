package config

import (
	"log/slog"
	"os"
	"testing"
)

// testKey is a valid 64-hex-character encryption key for tests.
const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"VOICEVAULT_DATA_DIR", "VOICEVAULT_HTTP_PORT", "VOICEVAULT_STORAGE_QUOTA_GB",
		"VOICEVAULT_DEFAULT_RETENTION_DAYS", "VOICEVAULT_ALERT_THRESHOLD_PCT",
		"VOICEVAULT_ENCRYPTION_KEY", "VOICEVAULT_LOG_LEVEL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"voicevault", "--encryption-key", testKey}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.StorageQuotaGB != defaultStorageQuotaGB {
		t.Errorf("StorageQuotaGB = %d, want %d", cfg.StorageQuotaGB, defaultStorageQuotaGB)
	}
	if cfg.DefaultRetentionDays != defaultRetentionDays {
		t.Errorf("DefaultRetentionDays = %d, want %d", cfg.DefaultRetentionDays, defaultRetentionDays)
	}
	if cfg.AlertThresholdPct != defaultAlertThresholdPct {
		t.Errorf("AlertThresholdPct = %d, want %d", cfg.AlertThresholdPct, defaultAlertThresholdPct)
	}
	if cfg.EncryptionKeyID != defaultEncryptionKeyID {
		t.Errorf("EncryptionKeyID = %q, want %q", cfg.EncryptionKeyID, defaultEncryptionKeyID)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"voicevault", "--encryption-key", testKey}
	t.Setenv("VOICEVAULT_HTTP_PORT", "9090")
	t.Setenv("VOICEVAULT_DATA_DIR", "/tmp/voicevault-test")
	t.Setenv("VOICEVAULT_STORAGE_QUOTA_GB", "200")
	t.Setenv("VOICEVAULT_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/voicevault-test" {
		t.Errorf("DataDir = %q, want /tmp/voicevault-test", cfg.DataDir)
	}
	if cfg.StorageQuotaGB != 200 {
		t.Errorf("StorageQuotaGB = %d, want 200", cfg.StorageQuotaGB)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"voicevault", "--encryption-key", testKey, "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("VOICEVAULT_HTTP_PORT", "9090")
	t.Setenv("VOICEVAULT_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"voicevault", "--encryption-key", testKey, "--http-port", "99999"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"voicevault", "--encryption-key", testKey, "--log-level", "verbose"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateMissingEncryptionKey(t *testing.T) {
	os.Args = []string{"voicevault"}
	os.Unsetenv("VOICEVAULT_ENCRYPTION_KEY")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when encryption-key is missing")
	}
}

func TestValidateShortEncryptionKey(t *testing.T) {
	os.Args = []string{"voicevault", "--encryption-key", "abcd1234"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short encryption key")
	}
}

func TestValidateAlertThresholdRange(t *testing.T) {
	os.Args = []string{"voicevault", "--encryption-key", testKey, "--alert-threshold-pct", "150"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for threshold above 100")
	}
}

func TestValidateSMTPRequiresAddresses(t *testing.T) {
	os.Args = []string{"voicevault", "--encryption-key", testKey, "--smtp-host", "mail.example.com"}
	if _, err := Load(); err == nil {
		t.Fatal("expected error when smtp-host is set without alert addresses")
	}
}

func TestEncryptionKeyBytes(t *testing.T) {
	cfg := &Config{EncryptionKey: testKey}
	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}

	cfg = &Config{EncryptionKey: "not-hex"}
	if _, err := cfg.EncryptionKeyBytes(); err == nil {
		t.Error("expected error for non-hex key")
	}
}

func TestStorageQuotaBytes(t *testing.T) {
	cfg := &Config{StorageQuotaGB: 2}
	if got := cfg.StorageQuotaBytes(); got != 2*1024*1024*1024 {
		t.Errorf("StorageQuotaBytes() = %d, want %d", got, int64(2*1024*1024*1024))
	}
}

func TestJWTSecretGenerated(t *testing.T) {
	cfg := &Config{}
	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("generated secret length = %d, want 32", len(key))
	}
	if cfg.JWTSecret == "" {
		t.Error("generated secret was not stored back in config")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
