package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/homecloud/pkg/db"
	"github.com/dmitrymomot/homecloud/pkg/logger"
	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/redis"
	"github.com/dmitrymomot/homecloud/pkg/storage"
)

// EnvPrefix prefixes every environment override, e.g. HOMECLOUD_SERVER_ADDRESS.
const EnvPrefix = "HOMECLOUD_"

// Config is the process configuration.
type Config struct {
	Server   Server         `yaml:"server" envPrefix:"SERVER_"`
	Cache    Cache          `yaml:"cache" envPrefix:"CACHE_"`
	Session  Session        `yaml:"session" envPrefix:"SESSION_"`
	Log      logger.Config  `yaml:"log" envPrefix:"LOG_"`
	Database db.Config      `yaml:"database" envPrefix:"DATABASE_"`
	Redis    redis.Config   `yaml:"redis" envPrefix:"REDIS_"`
	Storage  storage.Config `yaml:"storage" envPrefix:"S3_"`
}

// Server holds HTTP listener settings.
type Server struct {
	Address           string        `yaml:"address" env:"ADDRESS"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// Debug mounts /debug/cache.
	Debug bool `yaml:"debug" env:"DEBUG"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy" env:"TRUST_PROXY"`
}

// Cache holds the pin pool and sweep settings shared by every weak cache.
type Cache struct {
	Capacity         int           `yaml:"capacity" env:"CAPACITY"`
	MaxMemory        int64         `yaml:"max_memory" env:"MAX_MEMORY"`
	SweepSchedule    string        `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
	SweepConcurrency int           `yaml:"sweep_concurrency" env:"SWEEP_CONCURRENCY"`
	LoadTimeout      time.Duration `yaml:"load_timeout" env:"LOAD_TIMEOUT"`
}

// Session holds cookie settings.
type Session struct {
	CookieName string        `yaml:"cookie_name" env:"COOKIE_NAME"`
	MaxAge     time.Duration `yaml:"max_age" env:"MAX_AGE"`
	Domain     string        `yaml:"domain" env:"DOMAIN"`
	Secure     bool          `yaml:"secure" env:"SECURE"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Address:           ":8080",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Cache: Cache{
			Capacity:         pinning.DefaultCapacity,
			MaxMemory:        256 << 20,
			SweepSchedule:    pinning.DefaultSchedule,
			SweepConcurrency: 4,
			LoadTimeout:      30 * time.Second,
		},
		Session: Session{
			CookieName: "__session",
			MaxAge:     30 * 24 * time.Hour,
			Secure:     true,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Database: db.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults and applies
// HOMECLOUD_* environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Join(ErrInvalidFile, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Join(ErrInvalidEnv, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is empty"))
	}
	if c.Cache.Capacity < 0 {
		errs = append(errs, errors.New("cache.capacity is negative"))
	}
	if c.Cache.MaxMemory < 0 {
		errs = append(errs, errors.New("cache.max_memory is negative"))
	}
	if c.Cache.SweepSchedule == "" {
		errs = append(errs, errors.New("cache.sweep_schedule is empty"))
	}
	if c.Session.MaxAge <= 0 {
		errs = append(errs, errors.New("session.max_age must be positive"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}
