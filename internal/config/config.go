package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime knob of the service. It is constructed once
// at process start and handed to each component explicitly; nothing in
// this repository reads the environment after Load returns.
type Config struct {
	Addr        string `env:"CAREVAULT_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"CAREVAULT_PG_DSN"`

	JWTSecret  string        `env:"CAREVAULT_JWT_SECRET,required"`
	Issuer     string        `env:"CAREVAULT_JWT_ISSUER" envDefault:"carevault"`
	AccessTTL  time.Duration `env:"CAREVAULT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"CAREVAULT_REFRESH_TTL" envDefault:"168h"`

	LockoutThreshold int           `env:"CAREVAULT_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"CAREVAULT_LOCKOUT_DURATION" envDefault:"15m"`

	// EncryptionKey is the base64 encoding of a 32-byte AES-256 key used
	// for field-level encryption of protected records.
	EncryptionKey string `env:"CAREVAULT_ENCRYPTION_KEY,required"`

	BCryptCost int `env:"CAREVAULT_BCRYPT_COST" envDefault:"10"`
}

// Load parses configuration from environment variables and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that env parsing cannot express.
func (c Config) Validate() error {
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return fmt.Errorf("config: encryption key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("config: encryption key must decode to 32 bytes, got %d", len(key))
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("config: lockout threshold must be positive, got %d", c.LockoutThreshold)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("config: lockout duration must be positive, got %s", c.LockoutDuration)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("config: token lifetimes must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("config: refresh TTL %s must exceed access TTL %s", c.RefreshTTL, c.AccessTTL)
	}
	return nil
}
