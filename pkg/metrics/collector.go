package metrics

import (
	"context"
	"time"

	"github.com/sandoak/gsdharness/pkg/storage"
	"github.com/sandoak/gsdharness/pkg/types"
)

// Collector periodically samples gauge-shaped state out of the store so
// that point-in-time counts (sessions by status, plans by status, active
// file claims) are available to Prometheus without instrumenting every
// call site that mutates them.
type Collector struct {
	store   storage.Store
	project string
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector for the given project.
func NewCollector(store storage.Store, project string) *Collector {
	return &Collector{
		store:   store,
		project: project,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectSessionMetrics(ctx)
	c.collectPlanMetrics(ctx)
	c.collectFileClaimMetrics(ctx)
	c.collectCheckpointMetrics(ctx)
}

func (c *Collector) collectSessionMetrics(ctx context.Context) {
	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		return
	}

	counts := make(map[types.SessionStatus]int)
	for _, s := range sessions {
		counts[s.Status]++
	}
	for _, status := range []types.SessionStatus{
		types.SessionIdle, types.SessionRunning, types.SessionWaitingCheckpoint,
		types.SessionCompleted, types.SessionFailed,
	} {
		SessionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectPlanMetrics(ctx context.Context) {
	plans, err := c.store.ListPlans(ctx, c.project)
	if err != nil {
		return
	}

	counts := make(map[types.PlanStatus]int)
	for _, p := range plans {
		counts[p.Status]++
	}
	for _, status := range []types.PlanStatus{
		types.PlanPlanned, types.PlanExecuting, types.PlanExecuted, types.PlanVerified,
	} {
		PlansTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectFileClaimMetrics(ctx context.Context) {
	entries, err := c.store.ListActiveFiles(ctx, c.project)
	if err != nil {
		return
	}

	counts := make(map[types.FileMode]int)
	for _, e := range entries {
		counts[e.Mode]++
	}
	ActiveFileClaimsTotal.WithLabelValues(string(types.FileRead)).Set(float64(counts[types.FileRead]))
	ActiveFileClaimsTotal.WithLabelValues(string(types.FileWrite)).Set(float64(counts[types.FileWrite]))
}

func (c *Collector) collectCheckpointMetrics(ctx context.Context) {
	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		return
	}

	total := 0
	for _, s := range sessions {
		pending, err := c.store.ListPendingWorkerMessages(ctx, s.ID)
		if err != nil {
			continue
		}
		total += len(pending)
	}
	PendingCheckpoints.Set(float64(total))
}
