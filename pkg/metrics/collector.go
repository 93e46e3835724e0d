package metrics

import (
	"time"

	"github.com/pgraph/pgraph/pkg/txn"
)

// ClusterStatsFunc matches raftfsm.Cluster.Stats()'s signature. Accepted as
// a plain func rather than a *raftfsm.Cluster so the collector doesn't need
// to import pkg/raftfsm just for this one call; main.go passes
// cluster.Stats directly.
type ClusterStatsFunc func() map[string]interface{}

// Collector periodically samples the graph store and Raft cluster state
// into the package's gauges: a ticker-driven Start/Stop/collect loop over
// pgraph's store stats and cluster stats.
type Collector struct {
	store        *txn.Store
	clusterStats ClusterStatsFunc
	interval     time.Duration
	stopCh       chan struct{}
}

// NewCollector creates a collector sampling store and, if non-nil,
// clusterStats every 15 seconds.
func NewCollector(store *txn.Store, clusterStats ClusterStatsFunc) *Collector {
	return &Collector{
		store:        store,
		clusterStats: clusterStats,
		interval:     15 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the sampling loop in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStoreMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectStoreMetrics() {
	stats := c.store.Stats()
	VerticesTotal.Set(float64(stats.VertexCount))
	EdgesTotal.Set(float64(stats.EdgeCount))
	VertexLRUSize.Set(float64(stats.FullVertexSize))
	FragmentCacheSize.Set(float64(stats.VertexCount))
}

func (c *Collector) collectRaftMetrics() {
	if c.clusterStats == nil {
		return
	}
	stats := c.clusterStats()
	if stats == nil {
		RaftLeader.Set(0)
		return
	}
	if state, ok := stats["state"].(string); ok && state == "Leader" {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(int); ok {
		RaftPeers.Set(float64(peers))
	}
}
