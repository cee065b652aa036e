// Package config loads service configuration from the environment with an
// optional YAML file, following defaults that keep a bare checkout runnable.
package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Token lifetime defaults, in seconds.
const (
	DefaultAccessExpiry  = 3600
	DefaultRefreshExpiry = 604800
)

// Config is the root service configuration.
type Config struct {
	Env  string `yaml:"env" env:"MEDIDESK_ENV" env-default:"local"`
	HTTP HTTP   `yaml:"http"`
	DB   DB     `yaml:"db"`
	Auth Auth   `yaml:"auth"`
	Rate Rate   `yaml:"rate"`

	Reminders Reminders `yaml:"reminders"`
}

// HTTP holds server network settings.
type HTTP struct {
	Addr         string `yaml:"addr" env:"MEDIDESK_HTTP_ADDR" env-default:":8080"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" env:"MEDIDESK_MAX_BODY_BYTES" env-default:"1048576"`
}

// DB holds the PostgreSQL connection string. Empty DSN runs the API on the
// in-memory stores (development mode).
type DB struct {
	DSN string `yaml:"dsn" env:"MEDIDESK_PG_DSN"`
}

// Auth holds signing secrets and token lifetimes. Expiry values are kept as
// raw strings: a malformed value falls back to the default instead of failing
// startup.
type Auth struct {
	AccessSecret  string        `yaml:"access_secret" env:"MEDIDESK_JWT_SECRET" env-default:"default_secret"`
	RefreshSecret string        `yaml:"refresh_secret" env:"MEDIDESK_JWT_REFRESH_SECRET" env-default:"default_refresh_secret"`
	AccessExpiry  string        `yaml:"access_expiry" env:"MEDIDESK_TOKEN_EXPIRY"`
	RefreshExpiry string        `yaml:"refresh_expiry" env:"MEDIDESK_REFRESH_TOKEN_EXPIRY"`
	StrictRoles   bool          `yaml:"strict_roles" env:"MEDIDESK_STRICT_ROLES" env-default:"false"`
	RoleCacheTTL  time.Duration `yaml:"role_cache_ttl" env:"MEDIDESK_ROLE_CACHE_TTL" env-default:"30s"`
	Issuer        string        `yaml:"issuer" env:"MEDIDESK_JWT_ISSUER" env-default:"medidesk"`
}

// Rate holds the per-IP token bucket settings.
type Rate struct {
	Burst  int `yaml:"burst" env:"MEDIDESK_RATE_BURST" env-default:"20"`
	PerSec int `yaml:"per_sec" env:"MEDIDESK_RATE_PER_SEC" env-default:"10"`
}

// Reminders configures the appointment reminder scheduler.
type Reminders struct {
	Spec     string        `yaml:"spec" env:"MEDIDESK_REMINDER_SPEC" env-default:"@every 1m"`
	LeadTime time.Duration `yaml:"lead_time" env:"MEDIDESK_REMINDER_LEAD" env-default:"24h"`
}

// AccessTTL returns the configured access token lifetime.
func (a Auth) AccessTTL() time.Duration {
	return time.Duration(parseExpiry(a.AccessExpiry, DefaultAccessExpiry)) * time.Second
}

// RefreshTTL returns the configured refresh token lifetime.
func (a Auth) RefreshTTL() time.Duration {
	return time.Duration(parseExpiry(a.RefreshExpiry, DefaultRefreshExpiry)) * time.Second
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// parseExpiry accepts only positive integer strings; anything else yields the
// default so a typo in the environment never takes the service down.
func parseExpiry(raw string, def int) int {
	if raw == "" || !digitsOnly.MatchString(raw) {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration with the priority: explicit path, CONFIG_PATH,
// ./local.yaml, environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		if _, err := os.Stat("local.yaml"); err == nil {
			path = "local.yaml"
		}
	}
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
