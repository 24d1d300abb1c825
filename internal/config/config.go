// Package config loads runtime settings from the environment with
// development defaults. The JWT signing secret enters the process here and
// is injected into the token codec; nothing reads it from a global.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings for the atlas-api server.
type Config struct {
	Addr            string
	DatabaseDSN     string
	TokenSecret     string
	TokenIssuer     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SPARQLEndpoint  string
	RateBurst       int
	RatePerSecond   int
	UpgradeCooldown time.Duration
}

// LoadDefaults populates development defaults. The empty secret is
// deliberate: Validate rejects it so a production deployment cannot start
// without an explicit key.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.TokenIssuer = "atlas-api"
	c.AccessTokenTTL = 72 * time.Hour
	c.RefreshTokenTTL = 168 * time.Hour
	c.SPARQLEndpoint = "http://localhost:7200/repositories/atlas"
	c.RateBurst = 20
	c.RatePerSecond = 10
	c.UpgradeCooldown = 7 * 24 * time.Hour
}

// Load builds a Config from defaults overlaid with ATLAS_* environment
// variables.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	overlayString(&cfg.Addr, "ATLAS_ADDR")
	overlayString(&cfg.DatabaseDSN, "ATLAS_PG_DSN")
	overlayString(&cfg.TokenSecret, "ATLAS_AUTH_SECRET")
	overlayString(&cfg.TokenIssuer, "ATLAS_TOKEN_ISSUER")
	overlayString(&cfg.SPARQLEndpoint, "ATLAS_SPARQL_ENDPOINT")

	if err := overlayDuration(&cfg.AccessTokenTTL, "ATLAS_ACCESS_TTL"); err != nil {
		return nil, err
	}
	if err := overlayDuration(&cfg.RefreshTokenTTL, "ATLAS_REFRESH_TTL"); err != nil {
		return nil, err
	}
	if err := overlayDuration(&cfg.UpgradeCooldown, "ATLAS_UPGRADE_COOLDOWN"); err != nil {
		return nil, err
	}
	if err := overlayInt(&cfg.RateBurst, "ATLAS_RATE_BURST"); err != nil {
		return nil, err
	}
	if err := overlayInt(&cfg.RatePerSecond, "ATLAS_RATE_PER_SECOND"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings a running server cannot work without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TokenSecret) == "" {
		return errors.New("config: ATLAS_AUTH_SECRET is required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.RateBurst <= 0 || c.RatePerSecond <= 0 {
		return errors.New("config: rate limit settings must be positive")
	}
	return nil
}

func overlayString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func overlayInt(dst *int, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = v
	return nil
}
