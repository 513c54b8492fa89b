package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		Port:           "8000",
		Env:            "development",
		DatabaseURL:    "postgres://localhost/clinic",
		DBMaxConns:     20,
		DBMinConns:     5,
		IntakeKeyID:    "intake-v1",
		IntakeLogDir:   "logs/patient-intake",
		StorageTimeout: 5 * time.Second,
	}
}

func TestValidateRequiresDatabaseURL(t *testing.T) {
	cfg := baseConfig()
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestValidateDevAllowsMissingSecrets(t *testing.T) {
	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should validate: %v", err)
	}
}

func TestValidateProductionRequiresIntakeKey(t *testing.T) {
	cfg := baseConfig()
	cfg.Env = "production"
	cfg.AuthJWTSecret = "s3cret"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing INTAKE_ENCRYPTION_KEY in production")
	}
	if !strings.Contains(err.Error(), "INTAKE_ENCRYPTION_KEY") {
		t.Errorf("error should name the missing key, got %q", err)
	}

	cfg.IntakeKey = "clinic-shared-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("production config with key should validate: %v", err)
	}
}

func TestValidateNonDevRequiresJWTSecret(t *testing.T) {
	cfg := baseConfig()
	cfg.Env = "staging"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing AUTH_JWT_SECRET outside development")
	}
}

func TestValidateRejectsNonPositiveStorageTimeout(t *testing.T) {
	cfg := baseConfig()
	cfg.StorageTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero STORAGE_TIMEOUT")
	}
}

func TestIsProduction(t *testing.T) {
	cfg := baseConfig()
	if cfg.IsProduction() {
		t.Error("development config reported as production")
	}
	cfg.Env = "production"
	if !cfg.IsProduction() {
		t.Error("production config not reported as production")
	}
}
