package ratelimit

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttleEntry tracks one identity's in-process limiter and its last use
type throttleEntry struct {
	identity string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a cheap in-process pre-filter that runs ahead of the shared
// counter store. It sheds abusive bursts before they cost a store round
// trip; the store-backed Limiter remains the authoritative decision.
// Identities are tracked with LRU eviction so memory stays bounded.
type Throttle struct {
	mu      sync.Mutex
	entries map[string]*list.Element // identity -> list element
	lru     *list.List               // front = most recently used

	ratePerSecond int
	burst         int
	maxEntries    int

	cleanupEvery time.Duration
	stop         chan struct{}
	stopOnce     sync.Once

	evictions int64
	logger    *slog.Logger
}

// NewThrottle creates a throttle tracking at most 10,000 identities.
func NewThrottle(ratePerSecond, burst int, logger *slog.Logger) *Throttle {
	return NewThrottleWithCapacity(ratePerSecond, burst, 10000, logger)
}

// NewThrottleWithCapacity creates a throttle with a custom identity
// capacity. When full, the least recently seen identity is evicted; an
// evicted identity simply starts over with a full burst.
func NewThrottleWithCapacity(ratePerSecond, burst, maxEntries int, logger *slog.Logger) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		maxEntries = 10000
	}

	t := &Throttle{
		entries:       make(map[string]*list.Element),
		lru:           list.New(),
		ratePerSecond: ratePerSecond,
		burst:         burst,
		maxEntries:    maxEntries,
		cleanupEvery:  5 * time.Minute,
		stop:          make(chan struct{}),
		logger:        logger,
	}

	go t.cleanupLoop()
	return t
}

// Allow reports whether the identity may proceed to the store-backed check.
func (t *Throttle) Allow(identity string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.entries[identity]; ok {
		t.lru.MoveToFront(elem)
		entry := elem.Value.(*throttleEntry)
		entry.lastSeen = now
		return entry.limiter.Allow()
	}

	if t.maxEntries > 0 && len(t.entries) >= t.maxEntries {
		t.evictOldest()
	}

	entry := &throttleEntry{
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(t.ratePerSecond), t.burst),
		lastSeen: now,
	}
	t.entries[identity] = t.lru.PushFront(entry)

	return entry.limiter.Allow()
}

// evictOldest drops the least recently seen identity. Caller holds the lock.
func (t *Throttle) evictOldest() {
	elem := t.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*throttleEntry)
	delete(t.entries, entry.identity)
	t.lru.Remove(elem)
	t.evictions++

	t.logger.Debug("Throttle LRU eviction",
		"total_evictions", t.evictions,
		"tracked", len(t.entries))
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(t.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Cleanup(30 * time.Minute)
		case <-t.stop:
			return
		}
	}
}

// Cleanup drops identities idle for longer than maxIdle.
func (t *Throttle) Cleanup(maxIdle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := t.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*throttleEntry)
		if now.Sub(entry.lastSeen) > maxIdle {
			delete(t.entries, entry.identity)
			t.lru.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		t.logger.Debug("Throttle cleanup completed",
			"removed", removed,
			"tracked", len(t.entries))
	}
}

// Len returns the number of identities currently tracked.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop terminates the background cleanup goroutine. Safe to call twice.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
