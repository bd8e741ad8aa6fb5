// evictor.go houses the eviction loop for Pool.  Every EvictInterval it
// scans the map and closes handles idle longer than idleTTL.  Each
// eviction is logged and updates the Prometheus counters.
package pool

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/topsteel/erp-core/internal/metrics"
)

func (p *Pool) evictLoop() {
	for {
		select {
		case <-p.stop:
			return
		case <-p.evictTicker.C:
		}
		p.evictIdle(time.Now().UnixNano())
	}
}

// evictIdle closes every handle whose idle time exceeds the TTL, as seen
// from now (UnixNano).
func (p *Pool) evictIdle(now int64) {
	p.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		idle := time.Duration(now - atomic.LoadInt64(&ent.lastSeen))
		if idle > p.idleTTL {
			if _, ok := p.m.LoadAndDelete(key); ok {
				_ = ent.handle.DB.Close()
				metrics.ConnectionEvictTotal.Inc()
				metrics.ActiveConnections.Dec()
				zap.S().Infow("tenant connection evicted",
					"tenant", key, "idle", idle.Truncate(time.Second))
			}
		}
		return true
	})
}
