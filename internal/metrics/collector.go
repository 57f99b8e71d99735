package metrics

import (
	"context"
	"sync"
	"time"
)

// StatusState provides access to status channel state for metrics collection
type StatusState interface {
	IsConnected() bool
	Attempts() int
}

// Collector periodically updates gauge metrics from status channel state
type Collector struct {
	status   StatusState
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(status StatusState, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return &Collector{
		status:   status,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic metrics collection and blocks until ctx is done or
// Stop is called
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Stop ends a running Start; safe to call more than once
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect updates all gauge metrics from current state
func (c *Collector) Collect() {
	status := 0.0
	if c.status.IsConnected() {
		status = 1.0
	}
	StatusConnectionStatus.Set(status)
	StatusReconnectAttempts.Set(float64(c.status.Attempts()))
}
