package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/domain/channel/views"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"go.uber.org/zap"
)

type SummaryOptions struct {
	// TTL controls how long we serve the in-memory snapshot.
	// 150–400ms works well for 1.5s polling; default 250ms.
	TTL time.Duration
	// RefreshTimeout bounds the process listing for a single refresh; default 300ms.
	RefreshTimeout time.Duration
	// Allow serving stale on refresh error (graceful degrade).
	AllowStaleOnError bool
}

func (o *SummaryOptions) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 250 * time.Millisecond
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = 300 * time.Millisecond
	}
}

// ProcessRuntime is the remote view of a channel's process.
type ProcessRuntime struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Uptime   uint64  `json:"uptime_sec"`
	CPUUsage float64 `json:"cpu_usage"`
	Memory   uint64  `json:"memory_bytes"`
}

// ChannelSummary is one row of the dashboard.
type ChannelSummary struct {
	views.Channel
	Process *ProcessRuntime `json:"process,omitempty"`
}

// SummaryResult lets the handler set headers/telemetry.
type SummaryResult struct {
	Data        []ChannelSummary
	Active      int
	CacheHit    bool
	GeneratedAt time.Time // snapshot timestamp
}

// Summary serves a short-lived cached snapshot of every channel merged with
// the runtime of its remote process.
type Summary struct {
	log *zap.Logger
	m   *Manager

	mu      sync.RWMutex
	cache   []ChannelSummary
	active  int
	expires time.Time
	genAt   time.Time

	opts SummaryOptions
	now  func() time.Time

	sg singleflight.Group
}

// NewSummary wires the manager and cache policy.
// Reuse a single instance per process (handlers call Get()).
func NewSummary(log *zap.Logger, m *Manager, opts SummaryOptions) *Summary {
	opts.setDefaults()
	return &Summary{
		log:  log.Named("summary"),
		m:    m,
		opts: opts,
		now:  time.Now,
	}
}

// cached returns the snapshot when fresh (or when any is requested).
// Caller must hold s.mu.RLock.
func (s *Summary) cached() SummaryResult {
	return SummaryResult{Data: cloneSummaries(s.cache), Active: s.active, CacheHit: true, GeneratedAt: s.genAt}
}

// Get returns the cached snapshot or refreshes it when expired.
// Multiple concurrent refreshes are coalesced.
func (s *Summary) Get(ctx context.Context) (SummaryResult, error) {
	// Fast path: fresh cache
	s.mu.RLock()
	if s.cache != nil && s.now().Before(s.expires) {
		out := s.cached()
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	// Slow path: singleflight refresh
	v, err, _ := s.sg.Do("summary-refresh", func() (any, error) {
		// Double-check freshness after we won the flight
		s.mu.RLock()
		if s.cache != nil && s.now().Before(s.expires) {
			out := s.cached()
			s.mu.RUnlock()
			return out, nil
		}
		s.mu.RUnlock()

		ctx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
		defer cancel()

		start := s.now()
		data, active, err := s.refresh(ctx)
		if err != nil {
			// Refresh failed: optionally serve stale, else propagate error
			if s.opts.AllowStaleOnError {
				s.mu.RLock()
				if s.cache != nil {
					out := s.cached()
					s.mu.RUnlock()
					s.log.Warn("summary refresh failed; serving stale", zap.Error(err))
					return out, nil
				}
				s.mu.RUnlock()
			}
			return nil, err
		}

		// Publish new snapshot
		s.mu.Lock()
		s.cache = data
		s.active = active
		s.expires = s.now().Add(s.opts.TTL)
		s.genAt = start
		s.mu.Unlock()

		return SummaryResult{Data: cloneSummaries(data), Active: active, CacheHit: false, GeneratedAt: start}, nil
	})
	if err != nil {
		return SummaryResult{}, err
	}
	return v.(SummaryResult), nil
}

func (s *Summary) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.expires = time.Time{}
	s.genAt = time.Time{}
	s.mu.Unlock()
}

// refresh lists channels and, when any owns a process, the remote processes.
func (s *Summary) refresh(ctx context.Context) ([]ChannelSummary, int, error) {
	chs := s.m.List()

	live := false
	for i := range chs {
		if chs[i].IsLive() {
			live = true
			break
		}
	}

	byRef := map[string]restreamer.Process{}
	if client := s.m.Client(); live && client != nil {
		procs, err := client.GetProcesses(ctx)
		if err != nil {
			if !s.opts.AllowStaleOnError {
				return nil, 0, err
			}
			// Non-fatal: still assemble response
			s.log.Warn("list processes failed", zap.Error(err))
		}
		for _, p := range procs {
			byRef[p.Reference] = p
		}
	}

	active := 0
	out := make([]ChannelSummary, 0, len(chs))
	for i := range chs {
		ch := &chs[i]
		if ch.Status == channel.StatusActive {
			active++
		}
		sum := ChannelSummary{Channel: *ch.AsView()}
		if p, ok := byRef[ch.ProcessRef]; ok && ch.IsLive() {
			sum.Process = &ProcessRuntime{
				ID:       p.ID,
				State:    p.State,
				Uptime:   p.Uptime,
				CPUUsage: p.CPUUsage,
				Memory:   p.Memory,
			}
		}
		out = append(out, sum)
	}
	return out, active, nil
}

func cloneSummaries(in []ChannelSummary) []ChannelSummary {
	if len(in) == 0 {
		return []ChannelSummary{}
	}
	out := make([]ChannelSummary, len(in))
	copy(out, in)
	return out
}
