package redisconn

import (
	"strings"
	"time"
)

// Config holds the connection settings for the distributed backend.
// Timeouts are deliberately short: a slow backend must degrade to the local
// fallback quickly instead of blocking request handlers.
type Config struct {
	// Addr is the host:port of the backend.
	Addr string

	// Password authenticates the connection. Empty means no auth.
	Password string

	// DB selects the logical database.
	DB int

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// CommandTimeout bounds individual read/write commands.
	CommandTimeout time.Duration

	// IdleTimeout is how long the connection may sit unused before the
	// idle sweeper closes it to return the slot to the shared pool.
	IdleTimeout time.Duration

	// IdleCheckInterval is how often the idle sweeper runs.
	IdleCheckInterval time.Duration

	// MaxReconnectWait caps the exponential backoff between failed
	// connection attempts.
	MaxReconnectWait time.Duration

	// CriticalErrorPatterns are lowercase substrings matched against
	// backend errors. A match disables the backend until Reset is called.
	CriticalErrorPatterns []string
}

// DefaultConfig returns connection settings tuned for a fleet of short-lived
// handlers sharing a small backend connection budget.
func DefaultConfig() Config {
	return Config{
		Addr:                  "127.0.0.1:6379",
		DialTimeout:           2 * time.Second,
		CommandTimeout:        time.Second,
		IdleTimeout:           20 * time.Second,
		IdleCheckInterval:     15 * time.Second,
		MaxReconnectWait:      30 * time.Second,
		CriticalErrorPatterns: DefaultCriticalErrorPatterns(),
	}
}

// DefaultCriticalErrorPatterns lists the backend error signatures that mean
// the shared backend is out of capacity. Retrying against an exhausted
// backend only makes the exhaustion worse, so these disable it outright.
func DefaultCriticalErrorPatterns() []string {
	return []string{
		"max number of clients reached",
		"max requests limit exceeded",
		"oom command not allowed",
	}
}

// IsCritical reports whether err matches one of the configured critical
// error signatures.
func (c Config) IsCritical(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range c.CriticalErrorPatterns {
		if pattern != "" && strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
