package cache

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
)

const (
	defaultMemoryShards    = 16
	defaultCleanupInterval = time.Minute
)

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
}

// Memory is the in-process MemoryService. Keys are spread over shards by
// xxhash so concurrent requests for different keys rarely contend. Values
// are stored as-is: callers must not mutate what they put in or get out.
type Memory struct {
	shards []*memoryShard
	clock  clockwork.Clock

	cleanupInterval time.Duration
	stop            chan struct{}
	waitGroup       sync.WaitGroup
	once            sync.Once
}

var _ MemoryService = (*Memory)(nil)

// MemoryOption configures a Memory service.
type MemoryOption func(*Memory)

// WithMemoryClock replaces the wall clock, for tests.
func WithMemoryClock(clock clockwork.Clock) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

// WithCleanupInterval sets how often expired entries are swept. Zero or a
// negative interval disables the sweeper; expired entries are then only
// hidden, never reclaimed until overwritten. Defaults to one minute.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.cleanupInterval = d }
}

// WithShards sets the number of lock shards. Defaults to 16.
func WithShards(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.shards = make([]*memoryShard, n)
		}
	}
}

// NewMemory returns a new in-process cache. Call Close to stop the sweeper.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		shards:          make([]*memoryShard, defaultMemoryShards),
		clock:           clockwork.NewRealClock(),
		cleanupInterval: defaultCleanupInterval,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := range m.shards {
		m.shards[i] = &memoryShard{items: make(map[string]memoryEntry)}
	}
	if m.cleanupInterval > 0 {
		m.waitGroup.Add(1)
		go m.run()
	}
	return m
}

func (m *Memory) shard(key string) *memoryShard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

func (m *Memory) GetItem(key Key) (any, bool) {
	if key == nil {
		return nil, false
	}
	k := key.Key()
	s := m.shard(k)
	s.mu.RLock()
	entry, ok := s.items[k]
	s.mu.RUnlock()
	if !ok || !m.clock.Now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// SetItem stores value until the policy's effective expiry. A policy which
// expires immediately removes any previous value and stores nothing.
func (m *Memory) SetItem(key Key, value any, policy ExpiryPolicy) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	now := m.clock.Now()
	expiresAt := policy.EffectiveExpiry(now)
	k := key.Key()
	s := m.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !now.Before(expiresAt) {
		delete(s.items, k)
		return nil
	}
	s.items[k] = memoryEntry{value: value, expiresAt: expiresAt}
	return nil
}

// Len returns the number of stored entries, including expired entries not
// yet swept.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Sweep removes expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.clock.Now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, entry := range s.items {
			if !now.Before(entry.expiresAt) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Close stops the sweeper. The cache remains usable.
func (m *Memory) Close() error {
	m.once.Do(func() {
		close(m.stop)
		m.waitGroup.Wait()
	})
	return nil
}

func (m *Memory) run() {
	defer m.waitGroup.Done()
	ticker := m.clock.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.Chan():
			m.Sweep()
		}
	}
}
