// Package memstore is the in-process fallback store used when the
// distributed backend is unreachable or disabled. Entries carry their own
// expiry and a periodic sweep bounds memory growth. State is lost on process
// restart, which is acceptable for a fallback that is never the source of
// truth.
package memstore

import (
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultSweepInterval is how often expired entries are evicted when no
// interval is configured.
const DefaultSweepInterval = 2 * time.Minute

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is a TTL-aware namespace/key map. All operations are synchronous and
// never fail, so callers can rely on it unconditionally when the distributed
// backend is down.
type Store struct {
	entries *xsync.MapOf[string, entry]

	stop     chan struct{}
	stopOnce sync.Once
	sweeper  sync.WaitGroup
}

// New creates a Store and starts its expiry sweeper. Pass a non-positive
// interval to use DefaultSweepInterval.
func New(sweepInterval time.Duration) *Store {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	s := &Store{
		entries: xsync.NewMapOf[string, entry](),
		stop:    make(chan struct{}),
	}

	s.sweeper.Add(1)
	go s.sweepLoop(sweepInterval)

	return s
}

func storeKey(namespace, key string) string {
	return namespace + ":" + key
}

// Get returns the value for (namespace, key) if present and unexpired.
// Expired entries are evicted lazily on read.
func (s *Store) Get(namespace, key string) ([]byte, bool) {
	k := storeKey(namespace, key)
	e, ok := s.entries.Load(k)
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		s.entries.Delete(k)
		return nil, false
	}
	return e.value, true
}

// Set stores a value under (namespace, key). A non-positive ttl stores the
// entry without expiry.
func (s *Store) Set(namespace, key string, value []byte, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.entries.Store(storeKey(namespace, key), e)
}

// Delete removes a single entry.
func (s *Store) Delete(namespace, key string) {
	s.entries.Delete(storeKey(namespace, key))
}

// ClearNamespace removes every entry under the given namespace.
func (s *Store) ClearNamespace(namespace string) {
	prefix := namespace + ":"
	s.entries.Range(func(k string, _ entry) bool {
		if strings.HasPrefix(k, prefix) {
			s.entries.Delete(k)
		}
		return true
	})
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.entries.Clear()
}

// Len reports the number of entries currently held, expired ones included
// until the next sweep.
func (s *Store) Len() int {
	return s.entries.Size()
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer s.sweeper.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *Store) sweep(now time.Time) {
	s.entries.Range(func(k string, e entry) bool {
		if e.expired(now) {
			s.entries.Delete(k)
		}
		return true
	})
}

// Close stops the sweeper. Entries remain readable until the process exits.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.sweeper.Wait()
}
