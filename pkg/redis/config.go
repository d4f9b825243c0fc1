package redis

import (
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds connection settings for the session store.
// Zero fields take the defaults listed in withDefaults.
type Config struct {
	URL           string        `yaml:"url" env:"URL"`
	PoolSize      int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns  int           `yaml:"min_idle_conns"`
	MaxIdleTime   time.Duration `yaml:"max_idle_time"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// withDefaults fills zero fields. Session reads are small and frequent, so
// the pool favours a few warm connections and short I/O deadlines.
func (c Config) withDefaults() Config {
	def := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	def(&c.MaxIdleTime, 10*time.Minute)
	def(&c.ReadTimeout, 3*time.Second)
	def(&c.WriteTimeout, 3*time.Second)
	def(&c.DialTimeout, 5*time.Second)
	def(&c.RetryInterval, 2*time.Second)
	return c
}

// clientOptions parses the URL (redis:// or rediss:// for TLS) and applies
// the pool settings of c, which must already carry defaults.
func (c Config) clientOptions() (*goredis.Options, error) {
	if c.URL == "" {
		return nil, ErrNoURL
	}
	ro, err := goredis.ParseURL(c.URL)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}
	ro.PoolSize = c.PoolSize
	ro.MinIdleConns = c.MinIdleConns
	ro.ConnMaxIdleTime = c.MaxIdleTime
	ro.ReadTimeout = c.ReadTimeout
	ro.WriteTimeout = c.WriteTimeout
	ro.DialTimeout = c.DialTimeout
	return ro, nil
}
