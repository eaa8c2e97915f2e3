package cache

import (
	"sync"
	"time"
)

// BytesCache stores rendered response envelopes as raw bytes so a hit
// replays the exact body a miss produced. Implementations must treat a
// missing key as (nil, false, nil), not an error.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}

type ttlEntry struct {
	val     any
	expires time.Time
}

func (e ttlEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// TTLCache is an in-process response cache bounded by maxEntries. Rendered
// payloads are keyed by the full query shape, so the bound keeps a burst of
// distinct date ranges from growing the map without limit.
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]ttlEntry
	maxEntries int
}

func NewTTLCache(maxEntries int) *TTLCache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &TTLCache{entries: make(map[string]ttlEntry), maxEntries: maxEntries}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.val, true
}

// Set stores v for ttl; a non-positive ttl means no expiry. When the map
// is full, expired entries are dropped first, then one arbitrary entry,
// so the insert always fits.
func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	e := ttlEntry{val: v}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.makeRoomLocked()
	}
	c.entries[key] = e
}

func (c *TTLCache) makeRoomLocked() {
	now := time.Now()
	before := len(c.entries)
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < before {
		return
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}
