package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	IntakeKey      string        `mapstructure:"INTAKE_ENCRYPTION_KEY"`
	IntakeKeyID    string        `mapstructure:"INTAKE_KEY_ID"`
	IntakeLogDir   string        `mapstructure:"INTAKE_LOG_DIR"`
	StorageTimeout time.Duration `mapstructure:"STORAGE_TIMEOUT"`
	AuthJWTSecret  string        `mapstructure:"AUTH_JWT_SECRET"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("INTAKE_KEY_ID", "intake-v1")
	v.SetDefault("INTAKE_LOG_DIR", "logs/patient-intake")
	v.SetDefault("STORAGE_TIMEOUT", "5s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("INTAKE_ENCRYPTION_KEY")
	v.BindEnv("INTAKE_KEY_ID")
	v.BindEnv("INTAKE_LOG_DIR")
	v.BindEnv("STORAGE_TIMEOUT")
	v.BindEnv("AUTH_JWT_SECRET")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The intake
// encryption key may be absent: new submissions are then stored in
// plaintext and decrypting existing encrypted records fails with a
// configuration error. Production refuses to start without a key.
// The staff JWT secret is required outside development.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() && c.IntakeKey == "" {
		return fmt.Errorf("INTAKE_ENCRYPTION_KEY is required in production")
	}
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when ENV is not \"development\"")
	}
	if c.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive, got %s", c.StorageTimeout)
	}
	return nil
}
