package cache

import "strings"

// KeySeparator delimits the namespace from the identifier in a full cache
// key, following the `namespace:identifier` convention (e.g.
// "companies:AAPL-2024").
const KeySeparator = ":"

// Key builds a full cache key from a namespace and an identifier.
func Key(namespace, id string) string {
	return namespace + KeySeparator + id
}

// SplitKey splits a full cache key into namespace and identifier. Keys with
// no separator are treated as a bare namespace.
func SplitKey(full string) (namespace, id string) {
	idx := strings.Index(full, KeySeparator)
	if idx < 0 {
		return full, ""
	}
	return full[:idx], full[idx+len(KeySeparator):]
}

// NamespacePattern returns the scan pattern matching every key under a
// namespace on the distributed backend.
func NamespacePattern(namespace string) string {
	return namespace + KeySeparator + "*"
}
