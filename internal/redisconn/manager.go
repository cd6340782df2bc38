// Package redisconn owns the single connection to the distributed cache
// backend and the state machine around it: lazy connect, idle disconnect,
// fail-fast timeouts, reconnection backoff, and the disabled latch that trips
// on critical backend errors.
package redisconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDisabled is returned while the backend is latched off after a
	// critical error. Only an explicit Reset clears it.
	ErrDisabled = errors.New("redisconn: backend disabled after critical error")

	// ErrBackoff is returned while the reconnect backoff window is open.
	ErrBackoff = errors.New("redisconn: reconnect backoff in effect")

	// ErrClosed is returned after the manager has been shut down.
	ErrClosed = errors.New("redisconn: manager closed")
)

// ConnState is a point-in-time snapshot of the connection state machine,
// exposed through the admin surface.
type ConnState struct {
	InstanceID        string
	Connected         bool
	Disabled          bool
	LastActivity      time.Time
	ReconnectAttempts int
	LastCriticalError string
}

// connectAttempt is the shared pending future for an in-flight dial.
// Concurrent Ensure callers wait on the same done channel instead of racing
// to open duplicate connections.
type connectAttempt struct {
	done   chan struct{}
	client Client
	err    error
}

// Manager owns the connection handle and is the only component allowed to
// mutate connection state. All methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	dial   Dialer
	logger *zap.Logger

	mu           sync.Mutex
	client       Client
	pending      *connectAttempt
	disabled     bool
	closed       bool
	lastCritical string
	lastActivity time.Time
	attempts     int
	nextAttempt  time.Time
	bo           *backoff.ExponentialBackOff

	instanceID string
	stop       chan struct{}
	sweeperWG  sync.WaitGroup
	closeOnce  sync.Once
}

// NewManager creates a Manager and starts its idle-disconnect sweeper.
// A nil dialer selects DefaultDialer; a nil logger is replaced with a nop.
func NewManager(cfg Config, dial Dialer, logger *zap.Logger) *Manager {
	if dial == nil {
		dial = DefaultDialer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = cfg.MaxReconnectWait
	bo.MaxElapsedTime = 0

	m := &Manager{
		cfg:        cfg,
		dial:       dial,
		logger:     logger.Named("redisconn"),
		bo:         bo,
		instanceID: uuid.NewString(),
		stop:       make(chan struct{}),
	}

	if cfg.IdleCheckInterval > 0 {
		m.sweeperWG.Add(1)
		go m.idleSweeper()
	}

	return m
}

// Ensure returns an active client, connecting lazily if necessary. At most
// one physical connection attempt is in flight at a time; concurrent callers
// block on the same attempt. Failures come back as ErrDisabled, ErrBackoff,
// or the dial error itself; all of them mean "use the fallback store".
func (m *Manager) Ensure(ctx context.Context) (Client, error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.disabled {
		m.mu.Unlock()
		return nil, ErrDisabled
	}
	if m.client != nil {
		m.lastActivity = time.Now()
		c := m.client
		m.mu.Unlock()
		return c, nil
	}
	if !m.nextAttempt.IsZero() && time.Now().Before(m.nextAttempt) && m.pending == nil {
		m.mu.Unlock()
		return nil, ErrBackoff
	}

	attempt := m.pending
	if attempt == nil {
		attempt = &connectAttempt{done: make(chan struct{})}
		m.pending = attempt
		go m.connect(attempt)
	}
	m.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.client, attempt.err
	case <-ctx.Done():
		// The dial keeps running to its own timeout; this caller just
		// stops waiting for it.
		return nil, ctx.Err()
	}
}

// connect performs one dial and resolves the shared pending future.
func (m *Manager) connect(attempt *connectAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	client, err := m.dial(ctx, m.cfg)

	m.mu.Lock()
	m.pending = nil

	switch {
	case err == nil && m.closed:
		m.mu.Unlock()
		client.Close()
		attempt.err = ErrClosed
		close(attempt.done)
		return

	case err == nil:
		m.client = client
		m.lastActivity = time.Now()
		m.attempts = 0
		m.nextAttempt = time.Time{}
		m.bo.Reset()
		m.mu.Unlock()
		m.logger.Debug("connected to cache backend")
		attempt.client = client
		close(attempt.done)
		return

	case m.cfg.IsCritical(err):
		m.disableLocked(err)
		m.mu.Unlock()
		attempt.err = ErrDisabled
		close(attempt.done)
		return

	default:
		m.attempts++
		wait := m.bo.NextBackOff()
		m.nextAttempt = time.Now().Add(wait)
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Warn("cache backend connection failed",
			zap.Error(err),
			zap.Int("attempts", attempts),
			zap.Duration("next_attempt_in", wait))
		attempt.err = err
		close(attempt.done)
		return
	}
}

// ObserveError lets the store facade report a command failure. Critical
// signatures latch the disabled state and drop the connection; transient
// failures drop the connection so the next Ensure redials.
func (m *Manager) ObserveError(err error) {
	if err == nil || errors.Is(err, ErrKeyNotFound) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.IsCritical(err) {
		m.disableLocked(err)
		return
	}

	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
}

// disableLocked latches the disabled state. Caller must hold m.mu.
func (m *Manager) disableLocked(err error) {
	m.disabled = true
	m.lastCritical = err.Error()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.logger.Error("cache backend disabled after critical error", zap.Error(err))
}

// Touch records activity on the connection, resetting the idle clock.
func (m *Manager) Touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// Disabled reports whether the backend is currently latched off.
func (m *Manager) Disabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disabled
}

// State returns a snapshot of the connection state machine.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnState{
		InstanceID:        m.instanceID,
		Connected:         m.client != nil,
		Disabled:          m.disabled,
		LastActivity:      m.lastActivity,
		ReconnectAttempts: m.attempts,
		LastCriticalError: m.lastCritical,
	}
}

// Reset clears the disabled latch and the backoff schedule. This is the
// explicit administrative action required after a critical error.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.disabled = false
	m.lastCritical = ""
	m.attempts = 0
	m.nextAttempt = time.Time{}
	m.bo.Reset()
	m.mu.Unlock()
	m.logger.Info("cache backend re-enabled by reset")
}

// idleSweeper closes the connection when it has been unused for longer than
// the idle window, freeing the slot for other processes in the fleet.
func (m *Manager) idleSweeper() {
	defer m.sweeperWG.Done()

	ticker := time.NewTicker(m.cfg.IdleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.closeIfIdle()
		}
	}
}

func (m *Manager) closeIfIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil || m.cfg.IdleTimeout <= 0 {
		return
	}
	if time.Since(m.lastActivity) < m.cfg.IdleTimeout {
		return
	}

	m.client.Close()
	m.client = nil
	m.logger.Debug("closed idle cache backend connection",
		zap.Duration("idle_timeout", m.cfg.IdleTimeout))
}

// Close stops the idle sweeper and releases the connection. The manager is
// unusable afterwards.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	m.sweeperWG.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	return nil
}
