// internal/tenant/pool/pool_test.go
//
// Unit-tests for the lazy tenant pool using sqlmock-backed stub openers.
//
// Context
// -------
// The pool's contract has three load-bearing behaviours:
//
//   • N concurrent first-requests for one tenant open exactly one handle
//   • Close and CloseAll are idempotent and leave the map empty
//   • key normalization makes "ACME" and "acme" the same tenant
//
// Run: go test ./internal/tenant/pool -v

package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/topsteel/erp-core/internal/tenant/fault"
)

// stubOpener counts opens and hands back sqlmock-backed handles that may
// be closed without further expectations.
func stubOpener(t *testing.T, opens *int32) Opener {
	t.Helper()
	return func(_ context.Context, _ string) (*sqlx.DB, error) {
		atomic.AddInt32(opens, 1)
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(false))
		if err != nil {
			t.Fatalf("sqlmock: %v", err)
		}
		mock.ExpectClose()
		return sqlx.NewDb(db, "sqlmock"), nil
	}
}

func TestGetOpensOnceUnderConcurrency(t *testing.T) {
	var opens int32
	p := New(stubOpener(t, &opens), 0)
	defer p.CloseAll()

	const workers = 32
	handles := make([]*Handle, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := "ACME"
			if i%2 == 0 {
				code = "acme" // same tenant after normalization
			}
			h, err := p.Get(context.Background(), code)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&opens); got != 1 {
		t.Fatalf("opener ran %d times, want 1", got)
	}
	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("worker %d received a different handle", i)
		}
	}
	if handles[0].Key != "acme" {
		t.Fatalf("handle key = %q, want %q", handles[0].Key, "acme")
	}
}

func TestGetOpenerErrorIsConnectionError(t *testing.T) {
	boom := errors.New("connection refused")
	p := New(func(context.Context, string) (*sqlx.DB, error) {
		return nil, boom
	}, 0)
	defer p.CloseAll()

	_, err := p.Get(context.Background(), "acme")
	var ce *fault.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *fault.ConnectionError", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if got := p.ListActive(); len(got) != 0 {
		t.Fatalf("failed open left %d entries in the pool", len(got))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	var opens int32
	p := New(stubOpener(t, &opens), 0)
	defer p.CloseAll()

	if _, err := p.Get(context.Background(), "acme"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	p.Close("ACME") // normalization applies here too
	p.Close("acme") // second close is a no-op

	if got := p.ListActive(); len(got) != 0 {
		t.Fatalf("pool not empty after Close: %#v", got)
	}
}

func TestListActiveSortedSnapshot(t *testing.T) {
	var opens int32
	p := New(stubOpener(t, &opens), 0)
	defer p.CloseAll()

	for _, code := range []string{"zeta", "acme", "beta"} {
		if _, err := p.Get(context.Background(), code); err != nil {
			t.Fatalf("Get %s: %v", code, err)
		}
	}

	got := p.ListActive()
	want := []Active{
		{Tenant: "acme", IsInitialized: true},
		{Tenant: "beta", IsInitialized: true},
		{Tenant: "zeta", IsInitialized: true},
	}
	if len(got) != len(want) {
		t.Fatalf("snapshot size = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCloseAllDrainsAndIsReentrant(t *testing.T) {
	var opens int32
	p := New(stubOpener(t, &opens), time.Hour)

	for _, code := range []string{"acme", "beta", "gamma"} {
		if _, err := p.Get(context.Background(), code); err != nil {
			t.Fatalf("Get %s: %v", code, err)
		}
	}

	p.CloseAll()
	if got := p.ListActive(); len(got) != 0 {
		t.Fatalf("pool not drained: %#v", got)
	}

	p.CloseAll() // second drain must not panic or block
}

func TestEvictIdleRespectsTTL(t *testing.T) {
	var opens int32
	p := New(stubOpener(t, &opens), 0)
	p.idleTTL = time.Minute
	defer p.CloseAll()

	if _, err := p.Get(context.Background(), "acme"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := p.Get(context.Background(), "beta"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Age one entry past the TTL, leave the other fresh.
	v, _ := p.m.Load("acme")
	atomic.StoreInt64(&v.(*entry).lastSeen, time.Now().Add(-2*time.Minute).UnixNano())

	p.evictIdle(time.Now().UnixNano())

	got := p.ListActive()
	if len(got) != 1 || got[0].Tenant != "beta" {
		t.Fatalf("after eviction: %#v, want only beta", got)
	}
}
