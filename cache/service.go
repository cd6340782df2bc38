package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/internal/memstore"
	"github.com/goliatone/go-query-cache/internal/redisconn"
)

// Store is the contract the query wrapper consumes. Get never reports
// backend failures: absence is indistinguishable from a miss, and the
// service falls back to the local store internally.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
	ClearNamespace(ctx context.Context, namespace string) error
}

// Counts reports how many keys each backend currently holds. Redis is -1
// when the backend could not be reached.
type Counts struct {
	Redis int64
	Local int
}

// Service unifies the distributed backend and the local fallback store
// behind the Store contract, and carries the administrative surface
// (connection state, reset, bulk clears, key counts).
type Service struct {
	manager *redisconn.Manager
	local   *memstore.Store
	logger  *zap.Logger
	enabled bool
}

// Option customizes Service construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
	dialer redisconn.Dialer
}

// WithLogger sets the logger used by the service and its connection manager.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// withDialer injects a backend dialer. Package tests use this to run the
// service against fakes.
func withDialer(d redisconn.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// New validates cfg and builds a Service. The distributed connection is
// opened lazily on first use, never here.
func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &Service{
		manager: redisconn.NewManager(cfg.Redis.toConn(), o.dialer, o.logger),
		local:   memstore.New(cfg.Local.SweepInterval),
		logger:  o.logger.Named("cache"),
		enabled: cfg.Redis.Enabled,
	}, nil
}

// useRedis reports whether the distributed backend should be tried.
func (s *Service) useRedis() bool {
	return s.enabled && !s.manager.Disabled()
}

// Get tries the distributed backend first; on any failure it falls through
// to the local store. A genuine backend miss is final and does not consult
// the local store, since sets mirror to both backends.
func (s *Service) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	if s.useRedis() {
		client, err := s.manager.Ensure(ctx)
		if err == nil {
			data, err := client.Get(ctx, Key(namespace, key))
			switch {
			case err == nil:
				s.manager.Touch()
				var e Entry
				if derr := Unmarshal(data, &e); derr != nil {
					s.logger.Warn("discarding undecodable cache entry",
						zap.String("namespace", namespace),
						zap.String("key", key),
						zap.Error(derr))
					return nil, false
				}
				return e.Value, true
			case errors.Is(err, redisconn.ErrKeyNotFound):
				s.manager.Touch()
				return nil, false
			default:
				s.manager.ObserveError(err)
				s.logger.Warn("cache backend get failed, using fallback",
					zap.String("namespace", namespace),
					zap.Error(err))
			}
		}
	}

	return s.local.Get(namespace, key)
}

// Set writes to the distributed backend best-effort and always mirrors to
// the local store, so a read stays possible if the backend drops out
// between the set and the next get.
func (s *Service) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	data, err := Marshal(newEntry(namespace, key, value, ttl))
	if err != nil {
		return err
	}

	s.local.Set(namespace, key, value, ttl)

	if s.useRedis() {
		client, err := s.manager.Ensure(ctx)
		if err == nil {
			if err := client.Set(ctx, Key(namespace, key), data, ttl); err != nil {
				s.manager.ObserveError(err)
				s.logger.Warn("cache backend set failed",
					zap.String("namespace", namespace),
					zap.Error(err))
			} else {
				s.manager.Touch()
			}
		}
	}

	return nil
}

// Delete removes the entry from both backends, best effort.
func (s *Service) Delete(ctx context.Context, namespace, key string) error {
	s.local.Delete(namespace, key)

	if s.useRedis() {
		client, err := s.manager.Ensure(ctx)
		if err == nil {
			if err := client.Del(ctx, Key(namespace, key)); err != nil {
				s.manager.ObserveError(err)
				s.logger.Warn("cache backend delete failed",
					zap.String("namespace", namespace),
					zap.Error(err))
			} else {
				s.manager.Touch()
			}
		}
	}

	return nil
}

// ClearNamespace removes every entry under a namespace from both backends.
// A partial failure against the distributed backend never prevents the
// local copy from being cleared.
func (s *Service) ClearNamespace(ctx context.Context, namespace string) error {
	s.local.ClearNamespace(namespace)

	if s.useRedis() {
		client, err := s.manager.Ensure(ctx)
		if err == nil {
			if err := s.clearRedisPattern(ctx, client, NamespacePattern(namespace)); err != nil {
				s.manager.ObserveError(err)
				s.logger.Warn("cache backend namespace clear failed",
					zap.String("namespace", namespace),
					zap.Error(err))
			}
		}
	}

	return nil
}

// ClearAll removes every entry from both backends.
func (s *Service) ClearAll(ctx context.Context) error {
	s.local.Clear()

	if s.useRedis() {
		client, err := s.manager.Ensure(ctx)
		if err == nil {
			if err := client.FlushDB(ctx); err != nil {
				s.manager.ObserveError(err)
				s.logger.Warn("cache backend flush failed", zap.Error(err))
			} else {
				s.manager.Touch()
			}
		}
	}

	return nil
}

func (s *Service) clearRedisPattern(ctx context.Context, client redisconn.Client, pattern string) error {
	keys, err := client.ScanKeys(ctx, pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		s.manager.Touch()
		return nil
	}
	if err := client.Del(ctx, keys...); err != nil {
		return err
	}
	s.manager.Touch()
	return nil
}

// State returns a snapshot of the connection state machine for monitoring.
func (s *Service) State() redisconn.ConnState {
	return s.manager.State()
}

// Reset clears the disabled latch after a critical backend error. This is
// the explicit administrative action; nothing re-enables the backend
// automatically.
func (s *Service) Reset() {
	s.manager.Reset()
}

// Counts reports keys held per backend. The redis count is -1 when the
// backend is disabled or unreachable.
func (s *Service) Counts(ctx context.Context) Counts {
	counts := Counts{Redis: -1, Local: s.local.Len()}

	if s.useRedis() {
		client, err := s.manager.Ensure(ctx)
		if err == nil {
			n, err := client.DBSize(ctx)
			if err != nil {
				s.manager.ObserveError(err)
			} else {
				s.manager.Touch()
				counts.Redis = n
			}
		}
	}

	return counts
}

// Close shuts down the connection manager and the fallback sweeper.
func (s *Service) Close() error {
	s.local.Close()
	return s.manager.Close()
}
