// Package cache remembers metadata URIs by request fingerprint so repeated
// launches with identical metadata reuse one pinned document.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
)

// Cache maps fingerprints to metadata URIs. Entries are never evicted.
type Cache interface {
	// Get returns the URI stored under key.
	Get(ctx context.Context, key string) (string, bool, error)
	// PutIfAbsent stores uri unless key is already present, and returns the
	// value that ends up stored.
	PutIfAbsent(ctx context.Context, key, uri string) (string, error)
}

// fingerprintKey separates metadata fingerprints from any other BLAKE3 use.
var fingerprintKey = [32]byte{
	'l', 'a', 'u', 'n', 'c', 'h', '_', 'l', 'a', 'y', 'e', 'r', ' ',
	'm', 'e', 't', 'a', 'd', 'a', 't', 'a', ' ', 'v', '1',
}

// Fingerprint hashes the ordered parts into a hex key. Each part is length
// prefixed so ("ab","c") and ("a","bc") differ.
func Fingerprint(parts ...string) string {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var prefix [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(prefix[:], uint64(len(p)))
		hasher.Write(prefix[:])
		hasher.Write([]byte(p))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Memory is an in-process cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uri, ok := m.entries[key]
	return uri, ok, nil
}

// PutIfAbsent implements Cache.
func (m *Memory) PutIfAbsent(_ context.Context, key, uri string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[key]; ok {
		return existing, nil
	}
	m.entries[key] = uri
	return uri, nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
