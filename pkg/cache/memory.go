package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process cache store. It is the default backend and
// suitable for single-server deployments; entries do not survive a restart.
// For multi-server deployments, use RedisStore or S3Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]*storedEntry // namespace -> key -> entry
	closed  bool
	done    chan struct{}
}

type storedEntry struct {
	data      []byte
	hasData   bool
	meta      Metadata
	expiresAt time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
}

// WithCleanupInterval sets how often expired entries are swept.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.cleanupInterval = d
	}
}

// NewMemoryStore creates a new in-memory cache store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: 1 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &MemoryStore{
		entries: make(map[string]map[string]*storedEntry),
		done:    make(chan struct{}),
	}

	go store.cleanupLoop(cfg.cleanupInterval)
	return store
}

// Get retrieves an entry if it exists and has not expired.
func (m *MemoryStore) Get(ctx context.Context, key, namespace string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Entry{Key: key, Namespace: namespace}, ErrStoreClosed{}
	}

	ns, ok := m.entries[namespace]
	if !ok {
		return Entry{Key: key, Namespace: namespace}, nil
	}
	e, ok := ns[key]
	if !ok || time.Now().After(e.expiresAt) {
		return Entry{Key: key, Namespace: namespace}, nil
	}

	// Copies keep the stored entry immutable from the caller's side.
	var data []byte
	if e.hasData {
		data = make([]byte, len(e.data))
		copy(data, e.data)
	}
	return Entry{
		Found:     true,
		Key:       key,
		Namespace: namespace,
		Data:      data,
		Meta:      cloneMetadata(e.meta),
		ExpiresAt: e.expiresAt,
	}, nil
}

// Put stores an entry. An existing entry under the same key and namespace
// is overwritten (last write wins).
func (m *MemoryStore) Put(ctx context.Context, key, namespace string, data []byte, meta Metadata, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	ns, ok := m.entries[namespace]
	if !ok {
		ns = make(map[string]*storedEntry)
		m.entries[namespace] = ns
	}

	e := &storedEntry{
		meta:      cloneMetadata(meta),
		expiresAt: expiresAt,
	}
	if data != nil {
		e.hasData = true
		e.data = make([]byte, len(data))
		copy(e.data, data)
	}
	ns[key] = e
	return nil
}

// Delete removes an entry.
func (m *MemoryStore) Delete(ctx context.Context, key, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	if ns, ok := m.entries[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

// Close stops the cleanup loop and releases all entries.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.entries = nil
	return nil
}

// cleanupLoop periodically removes expired entries.
func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	now := time.Now()
	for _, ns := range m.entries {
		for key, e := range ns {
			if now.After(e.expiresAt) {
				delete(ns, key)
			}
		}
	}
}

func cloneMetadata(meta Metadata) Metadata {
	out := Metadata{Status: meta.Status}
	if meta.Header != nil {
		out.Header = meta.Header.Clone()
	}
	return out
}
