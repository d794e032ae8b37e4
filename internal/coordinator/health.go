package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/scatter/internal/cluster"
)

// NodeHealth is the tracked probe state for one registered node.
type NodeHealth struct {
	NodeID      string
	Healthy     bool
	Misses      int
	LastCheck   time.Time
	LastHealthy time.Time
}

// HealthMonitor periodically probes every registered node's /health endpoint
// and tracks consecutive misses. Routing consults the miss counts to order
// replicas; a node past the dead threshold triggers the configured callback
// so its assignments can be dropped.
//
// All methods are safe for concurrent use.
type HealthMonitor struct {
	logger     *zap.Logger
	interval   time.Duration
	timeout    time.Duration
	deadAfter  int
	probe      func(addr string) error
	onDead     func(nodeID string)
	httpClient *http.Client

	mu    sync.RWMutex
	nodes map[string]*NodeHealth

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor creates a monitor probing at the given interval. Nodes
// are considered dead after deadAfter consecutive misses.
func NewHealthMonitor(logger *zap.Logger, interval time.Duration, deadAfter int) *HealthMonitor {
	if deadAfter <= 0 {
		deadAfter = 3
	}
	m := &HealthMonitor{
		logger:     logger,
		interval:   interval,
		timeout:    2 * time.Second,
		deadAfter:  deadAfter,
		nodes:      make(map[string]*NodeHealth),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	m.probe = m.defaultProbe
	return m
}

// SetProbe overrides the probe function; tests inject failures here.
func (m *HealthMonitor) SetProbe(probe func(addr string) error) { m.probe = probe }

// SetOnDead registers the callback invoked once when a node crosses the dead
// threshold, typically to drop its routing assignments.
func (m *HealthMonitor) SetOnDead(cb func(nodeID string)) { m.onDead = cb }

// Start launches the probe loop against the nodes returned by provider. It
// returns immediately; Stop shuts the loop down.
func (m *HealthMonitor) Start(provider func() []cluster.NodeInfo) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.checkAll(provider())
		for {
			select {
			case <-ticker.C:
				m.checkAll(provider())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Misses returns the consecutive miss count for a node. Unknown nodes report
// zero so freshly registered nodes are treated as healthy until proven
// otherwise. Implements routing.HealthProvider.
func (m *HealthMonitor) Misses(nodeID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.nodes[nodeID]; ok {
		return h.Misses
	}
	return 0
}

// IsHealthy reports whether the node's last probe succeeded.
func (m *HealthMonitor) IsHealthy(nodeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.nodes[nodeID]
	return ok && h.Healthy
}

// Snapshot returns a copy of all tracked node health records.
func (m *HealthMonitor) Snapshot() map[string]NodeHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]NodeHealth, len(m.nodes))
	for id, h := range m.nodes {
		out[id] = *h
	}
	return out
}

func (m *HealthMonitor) checkAll(nodes []cluster.NodeInfo) {
	current := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		current[n.ID] = true
		m.checkNode(n)
	}

	// Forget nodes that left the cluster.
	m.mu.Lock()
	for id := range m.nodes {
		if !current[id] {
			delete(m.nodes, id)
		}
	}
	m.mu.Unlock()
}

func (m *HealthMonitor) checkNode(n cluster.NodeInfo) {
	err := m.probe(n.Addr)

	m.mu.Lock()
	h, ok := m.nodes[n.ID]
	if !ok {
		h = &NodeHealth{NodeID: n.ID, Healthy: true, LastHealthy: time.Now()}
		m.nodes[n.ID] = h
	}
	h.LastCheck = time.Now()

	var crossedDead bool
	if err != nil {
		h.Misses++
		h.Healthy = false
		crossedDead = h.Misses == m.deadAfter
		m.logger.Warn("node health probe failed",
			zap.String("node", n.ID),
			zap.Int("misses", h.Misses),
			zap.Error(err))
	} else {
		if !h.Healthy {
			m.logger.Info("node recovered", zap.String("node", n.ID))
		}
		h.Healthy = true
		h.Misses = 0
		h.LastHealthy = time.Now()
	}
	m.mu.Unlock()

	if crossedDead && m.onDead != nil {
		m.logger.Warn("node declared dead", zap.String("node", n.ID))
		// Callback runs outside the lock.
		m.onDead(n.ID)
	}
}

func (m *HealthMonitor) defaultProbe(addr string) error {
	url := cluster.NormalizeAddr(addr)
	if !strings.HasSuffix(url, "/health") {
		url += "/health"
	}
	resp, err := m.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe: status %d", resp.StatusCode)
	}
	return nil
}
