package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-query-cache/internal/memstore"
	"github.com/goliatone/go-query-cache/internal/redisconn"
)

// Config configures the cache service: the distributed backend connection,
// the local fallback store, and the default entry TTL.
type Config struct {
	Redis      RedisConfig
	Local      LocalConfig
	DefaultTTL time.Duration
}

// RedisConfig configures the distributed backend. Disabling it turns the
// service into a purely in-process cache, which is also how tests run
// without a live backend.
type RedisConfig struct {
	// Enabled controls whether the distributed backend is used at all.
	Enabled bool

	// Addr is the backend host:port.
	Addr string

	// Password authenticates the connection. Empty means no auth.
	Password string

	// DB selects the logical database.
	DB int

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// CommandTimeout bounds individual commands.
	CommandTimeout time.Duration

	// IdleTimeout is how long the connection may sit unused before being
	// closed to free its slot in the shared pool.
	IdleTimeout time.Duration

	// IdleCheckInterval is how often the idle sweeper runs.
	IdleCheckInterval time.Duration

	// MaxReconnectWait caps the exponential reconnect backoff.
	MaxReconnectWait time.Duration

	// CriticalErrorPatterns are lowercase substrings of backend errors
	// that disable the backend until an explicit reset.
	CriticalErrorPatterns []string
}

// LocalConfig configures the in-process fallback store.
type LocalConfig struct {
	// SweepInterval is how often expired fallback entries are evicted.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	conn := redisconn.DefaultConfig()
	return Config{
		Redis: RedisConfig{
			Enabled:               true,
			Addr:                  conn.Addr,
			DialTimeout:           conn.DialTimeout,
			CommandTimeout:        conn.CommandTimeout,
			IdleTimeout:           conn.IdleTimeout,
			IdleCheckInterval:     conn.IdleCheckInterval,
			MaxReconnectWait:      conn.MaxReconnectWait,
			CriticalErrorPatterns: conn.CriticalErrorPatterns,
		},
		Local: LocalConfig{
			SweepInterval: memstore.DefaultSweepInterval,
		},
		DefaultTTL: 5 * time.Minute,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Second)),
	)
}

// Validate checks the distributed backend settings. Connection fields are
// only required when the backend is enabled.
func (c RedisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required.When(c.Enabled)),
		validation.Field(&c.DialTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.CommandTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.IdleTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.IdleCheckInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxReconnectWait, validation.Min(time.Duration(0))),
		validation.Field(&c.DB, validation.Min(0)),
	)
}

func (c RedisConfig) toConn() redisconn.Config {
	return redisconn.Config{
		Addr:                  c.Addr,
		Password:              c.Password,
		DB:                    c.DB,
		DialTimeout:           c.DialTimeout,
		CommandTimeout:        c.CommandTimeout,
		IdleTimeout:           c.IdleTimeout,
		IdleCheckInterval:     c.IdleCheckInterval,
		MaxReconnectWait:      c.MaxReconnectWait,
		CriticalErrorPatterns: c.CriticalErrorPatterns,
	}
}
