// Package connpool manages a bounded set of live vectordb.Engine connections,
// keyed by the (uri, user, db) triple a request authenticates against, so
// that concurrent requests from the same tenant share one underlying
// connection instead of dialing the remote engine per request.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vectorgate/vectorgate/internal/telemetry"
	"github.com/vectorgate/vectorgate/internal/vectordb"
)

// ErrExhausted is returned when the pool is at MaxEntries, the requested
// key is not already present, and every entry is in use, so there is no
// idle entry to evict to make room.
var ErrExhausted = errors.New("connpool: pool exhausted")

// Key identifies a pooled connection.
type Key struct {
	URI  string
	User string
	DB   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.URI, k.User, k.DB)
}

// Factory builds a new engine connection for a key. Supplied by the caller
// so the pool itself has no dependency on credential resolution.
type Factory func(ctx context.Context, key Key) (vectordb.Engine, error)

type entry struct {
	engine   vectordb.Engine
	refCount int
	lastUsed time.Time
}

// Pool is a reference-counted, idle-evicted cache of vectordb.Engine
// connections.
type Pool struct {
	factory   Factory
	maxIdle   time.Duration
	maxEntries int
	softFloor int
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*sync.Mutex // per-key creation locks
}

// New creates a Pool. maxEntries bounds the number of distinct keys held
// at once; maxIdle is how long an entry may sit with zero references
// before the sweeper evicts it; softFloor is the minimum entry count below
// which the sweeper will not evict, to avoid thrashing under light load.
func New(factory Factory, maxEntries int, maxIdle time.Duration, softFloor int, logger *slog.Logger) *Pool {
	return &Pool{
		factory:    factory,
		maxIdle:    maxIdle,
		maxEntries: maxEntries,
		softFloor:  softFloor,
		logger:     logger,
		entries:    make(map[string]*entry),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Acquire returns the live engine for key, creating it if needed. Callers
// must call Release when done with the connection.
func (p *Pool) Acquire(ctx context.Context, key Key) (vectordb.Engine, error) {
	k := key.String()

	p.mu.Lock()
	if e, ok := p.entries[k]; ok {
		e.refCount++
		e.lastUsed = time.Now()
		p.mu.Unlock()
		telemetry.PoolAcquireTotal.WithLabelValues("hit").Inc()
		return e.engine, nil
	}

	if len(p.entries) >= p.maxEntries {
		if !p.evictOneIdle() {
			p.mu.Unlock()
			telemetry.PoolAcquireTotal.WithLabelValues("exhausted").Inc()
			return nil, ErrExhausted
		}
	}

	// Per-key creation lock prevents a thundering herd of concurrent
	// first-requests for the same key from all dialing the remote engine.
	keyLock, ok := p.locks[k]
	if !ok {
		keyLock = &sync.Mutex{}
		p.locks[k] = keyLock
	}
	p.mu.Unlock()

	keyLock.Lock()
	defer keyLock.Unlock()

	p.mu.Lock()
	if e, ok := p.entries[k]; ok {
		e.refCount++
		e.lastUsed = time.Now()
		p.mu.Unlock()
		telemetry.PoolAcquireTotal.WithLabelValues("hit").Inc()
		return e.engine, nil
	}
	p.mu.Unlock()

	engine, err := p.factory(ctx, key)
	if err != nil {
		telemetry.PoolAcquireTotal.WithLabelValues("connection_error").Inc()
		return nil, fmt.Errorf("connecting to %s: %w", k, err)
	}

	p.mu.Lock()
	p.entries[k] = &entry{engine: engine, refCount: 1, lastUsed: time.Now()}
	telemetry.PoolActiveEntries.Set(float64(len(p.entries)))
	p.mu.Unlock()

	telemetry.PoolAcquireTotal.WithLabelValues("miss").Inc()
	return engine, nil
}

// evictOneIdle closes and removes one entry with a zero reference count, to
// make room for a new key when the pool is at maxEntries. Callers must hold
// p.mu. Returns false if every entry is in-flight, meaning the pool really
// is exhausted.
func (p *Pool) evictOneIdle() bool {
	for k, e := range p.entries {
		if e.refCount > 0 {
			continue
		}
		if err := e.engine.Close(); err != nil {
			p.logger.Warn("closing idle pool entry to make room", "key", k, "error", err)
		}
		delete(p.entries, k)
		delete(p.locks, k)
		telemetry.PoolEvictedTotal.Inc()
		telemetry.PoolActiveEntries.Set(float64(len(p.entries)))
		return true
	}
	return false
}

// Release decrements the reference count for key. The underlying engine
// stays pooled, idle, until the sweeper evicts it.
func (p *Pool) Release(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key.String()]; ok && e.refCount > 0 {
		e.refCount--
		e.lastUsed = time.Now()
	}
}

// Sweep closes idle entries (refCount == 0, unused for longer than maxIdle),
// stopping once the soft floor is reached so the pool doesn't thrash
// connections open and closed under steady low traffic.
func (p *Pool) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for k, e := range p.entries {
		if len(p.entries) <= p.softFloor {
			break
		}
		if e.refCount > 0 {
			continue
		}
		if now.Sub(e.lastUsed) < p.maxIdle {
			continue
		}
		if err := e.engine.Close(); err != nil {
			p.logger.Warn("closing idle pool entry", "key", k, "error", err)
		}
		delete(p.entries, k)
		delete(p.locks, k)
		evicted++
		telemetry.PoolEvictedTotal.Inc()
	}
	telemetry.PoolActiveEntries.Set(float64(len(p.entries)))
	return evicted
}

// Len reports the current number of pooled entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Shutdown closes every pooled entry, regardless of reference count. Called
// during graceful shutdown after in-flight requests have been drained.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k, e := range p.entries {
		if err := e.engine.Close(); err != nil {
			p.logger.Warn("closing pool entry on shutdown", "key", k, "error", err)
		}
	}
	p.entries = make(map[string]*entry)
	p.locks = make(map[string]*sync.Mutex)
}
