package engine

import (
	"context"
	"sync"
	"time"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"go.uber.org/zap"
)

// DefaultMonitorTick is how often the monitor scans channels.
const DefaultMonitorTick = time.Second

// Monitor periodically expires previews and health-checks ACTIVE channels.
// Channels with a mutation in flight are skipped until the next tick.
type Monitor struct {
	log  *zap.Logger
	m    *Manager
	tick time.Duration

	wg sync.WaitGroup
}

// NewMonitor returns a monitor over m; tick <= 0 means DefaultMonitorTick.
func NewMonitor(log *zap.Logger, m *Manager, tick time.Duration) *Monitor {
	if tick <= 0 {
		tick = DefaultMonitorTick
	}
	return &Monitor{log: log.Named("monitor"), m: m, tick: tick}
}

// Run scans until ctx is cancelled, then waits for in-flight checks.
func (mon *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(mon.tick)
	defer t.Stop()

	mon.log.Info("monitor started", zap.Duration("tick", mon.tick))
	defer mon.log.Info("monitor stopped")

	for {
		select {
		case <-ctx.Done():
			mon.wg.Wait()
			return nil
		case <-t.C:
			mon.Scan(ctx)
		}
	}
}

// Scan runs one pass over every channel. Health checks run in the
// background; each holds its channel's gate until it finishes.
func (mon *Monitor) Scan(ctx context.Context) {
	now := mon.m.now()
	for _, id := range mon.m.ids() {
		e, err := mon.m.entry(id)
		if err != nil {
			continue
		}

		e.mu.RLock()
		status := e.ch.Status
		previewDue := status == channel.StatusPreview && e.ch.PreviewTimedOut(now)
		healthDue := status == channel.StatusActive && e.ch.HealthMonitoring &&
			now.Sub(e.lastHealth) >= time.Duration(max(e.ch.HealthInterval, 1))*time.Second
		e.mu.RUnlock()

		if !previewDue && !healthDue {
			continue
		}
		if !e.gate.TryLock() {
			continue
		}
		if e.deleted {
			e.gate.Unlock()
			continue
		}

		if previewDue {
			mon.m.expirePreview(ctx, e)
			e.gate.Unlock()
			continue
		}

		e.mu.Lock()
		e.lastHealth = now
		e.mu.Unlock()

		mon.wg.Add(1)
		go func() {
			defer mon.wg.Done()
			defer e.gate.Unlock()
			mon.check(ctx, e)
		}()
	}
}

func (mon *Monitor) check(ctx context.Context, e *entry) {
	log := mon.log.With(zap.String("channel_id", e.id))
	if err := mon.m.checkHealth(ctx, e); err != nil && ctx.Err() == nil {
		log.Warn("health check failed", zap.Error(err))
	}
	if err := mon.m.updateStats(ctx, e); err != nil && ctx.Err() == nil {
		log.Debug("update stats failed", zap.Error(err))
	}
}

// Wait blocks until background checks started by Scan finish.
func (mon *Monitor) Wait() { mon.wg.Wait() }
