package cache

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is the envelope stored on both backends. Identity is
// (Namespace, Key); entries are immutable once written and replaced
// wholesale on re-set.
type Entry struct {
	Namespace  string    `msgpack:"n"`
	Key        string    `msgpack:"k"`
	Value      []byte    `msgpack:"v"`
	TTLSeconds int       `msgpack:"t"`
	StoredAt   time.Time `msgpack:"s"`
}

// Marshal encodes a value with msgpack. Used for both the Entry envelope and
// the caller payloads the query wrapper caches.
func Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes msgpack data into v.
func Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func newEntry(namespace, key string, value []byte, ttl time.Duration) Entry {
	return Entry{
		Namespace:  namespace,
		Key:        key,
		Value:      value,
		TTLSeconds: int(ttl / time.Second),
		StoredAt:   time.Now(),
	}
}
