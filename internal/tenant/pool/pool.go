// internal/tenant/pool/pool.go
//
// Lazy per-tenant connection pool.
//
// Context
// -------
// Every tenant owns a dedicated physical database.  The Pool materialises
// at most one live *sqlx.DB per tenant, on first access, and caches it in
// a sync.Map keyed by the normalized tenant code.  The *act of opening* a
// handle is additionally guarded by a singleflight group, so N concurrent
// first-requests for the same tenant block on one open instead of racing;
// operations on different tenant keys never contend with each other.
//
// Lifecycle: entries are created lazily, removed by Close (administrative
// operation), by the idle evictor, or by CloseAll during process shutdown.
// CloseAll is wired explicitly into the shutdown sequence of cmd/api — no
// framework hook.
//
// Notes
// -----
//   - A ConnectionError from Get is not retried here; callers decide.
//   - Closing a handle that another goroutine is still using is an
//     accepted risk; callers stop issuing work before Close.
package pool

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/topsteel/erp-core/internal/metrics"
	"github.com/topsteel/erp-core/internal/tenant"
	"github.com/topsteel/erp-core/internal/tenant/fault"
)

// Static defaults.  Override via the pool section of the config.
const (
	DefaultIdleTTL = 30 * time.Minute
	EvictInterval  = 5 * time.Minute
)

// Opener turns a normalized tenant key into an open, initialized handle.
// The production opener builds a DSN from shared config plus the derived
// database name; tests substitute stubs.
type Opener func(ctx context.Context, key string) (*sqlx.DB, error)

// Handle is a live connection to one tenant's physical database.  It is
// owned by the Pool; borrowers must not close it.
type Handle struct {
	Key string
	DB  *sqlx.DB
}

type entry struct {
	handle   *Handle
	lastSeen int64 // UnixNano
}

// Active is one row of the ListActive snapshot.
type Active struct {
	Tenant        string `json:"tenant"`
	IsInitialized bool   `json:"isInitialized"`
}

// Pool lazily opens tenant handles, stores them in a sync.Map, and evicts
// them on idle TTL.
type Pool struct {
	open        Opener
	sfg         singleflight.Group
	m           sync.Map
	idleTTL     time.Duration
	evictTicker *time.Ticker
	stop        chan struct{}
	stopOnce    sync.Once
}

// New constructs a Pool.  When idleTTL > 0 a background evictor closes
// handles that have been idle longer than the TTL.
func New(open Opener, idleTTL time.Duration) *Pool {
	p := &Pool{
		open:    open,
		idleTTL: idleTTL,
		stop:    make(chan struct{}),
	}
	if idleTTL > 0 {
		p.evictTicker = time.NewTicker(EvictInterval)
		go p.evictLoop()
	}
	return p
}

// Get returns the Handle for code, opening it on demand.  The code is
// normalized to the pool key first, so "ACME" and "acme" share one handle.
func (p *Pool) Get(ctx context.Context, code string) (*Handle, error) {
	key := tenant.PoolKey(code)

	if v, ok := p.m.Load(key); ok {
		ent := v.(*entry)
		atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
		return ent.handle, nil
	}

	v, err, _ := p.sfg.Do(key, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if v, ok := p.m.Load(key); ok {
			ent := v.(*entry)
			atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
			return ent.handle, nil
		}
		db, err := p.open(ctx, key)
		if err != nil {
			metrics.ConnectionErrorsTotal.Inc()
			return nil, &fault.ConnectionError{Tenant: key, Err: err}
		}
		ent := &entry{
			handle:   &Handle{Key: key, DB: db},
			lastSeen: time.Now().UnixNano(),
		}
		p.m.Store(key, ent)
		metrics.ConnectionOpenTotal.Inc()
		metrics.ActiveConnections.Inc()
		zap.S().Infow("tenant connection online", "tenant", key)
		return ent.handle, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Close tears down the handle for code if one exists.  No-op when absent.
func (p *Pool) Close(code string) {
	key := tenant.PoolKey(code)
	v, ok := p.m.LoadAndDelete(key)
	if !ok {
		return
	}
	ent := v.(*entry)
	if err := ent.handle.DB.Close(); err != nil {
		zap.S().Warnw("tenant connection close", "tenant", key, "err", err)
	}
	metrics.ActiveConnections.Dec()
	zap.S().Infow("tenant connection closed", "tenant", key)
}

// ListActive returns a read-only snapshot of the open handles, sorted by
// tenant key.  It never triggers handle creation.
func (p *Pool) ListActive() []Active {
	var out []Active
	p.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		out = append(out, Active{
			Tenant:        key.(string),
			IsInitialized: ent.handle.DB != nil,
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Tenant < out[j].Tenant })
	return out
}

// CloseAll drains the pool: every open handle is closed concurrently, the
// call waits for completion, and the map is cleared.  Safe to call on an
// empty or already-drained pool.
func (p *Pool) CloseAll() {
	p.stopOnce.Do(func() {
		close(p.stop)
		if p.evictTicker != nil {
			p.evictTicker.Stop()
		}
	})

	var wg sync.WaitGroup
	p.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		p.m.Delete(key)
		wg.Add(1)
		go func(k string, h *Handle) {
			defer wg.Done()
			if err := h.DB.Close(); err != nil {
				zap.S().Warnw("tenant connection close", "tenant", k, "err", err)
			}
			metrics.ActiveConnections.Dec()
		}(key.(string), ent.handle)
		return true
	})
	wg.Wait()
	zap.S().Infow("tenant pool drained")
}
