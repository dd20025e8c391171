package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"go.uber.org/zap"
)

// ProcessStats is the last known runtime of a channel's remote process.
type ProcessStats struct {
	ProcessID     string    `json:"process_id"`
	State         string    `json:"state"`
	Uptime        uint64    `json:"uptime_sec"`
	CPUUsage      float64   `json:"cpu_usage"`
	Memory        uint64    `json:"memory_bytes"`
	Bitrate       uint32    `json:"bitrate_kbps"`
	FPS           float64   `json:"fps"`
	Frames        uint64    `json:"frames"`
	DroppedFrames uint64    `json:"dropped_frames"`
	BytesWritten  uint64    `json:"bytes_written"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SetHealthMonitoring turns health monitoring on or off. Enabling fills in
// the default interval, threshold and attempt budget when unset.
func (m *Manager) SetHealthMonitoring(ctx context.Context, id string, enabled bool) error {
	return m.mutate(ctx, id, "set_health_monitoring", func(ch *channel.Channel) error {
		ch.SetHealthMonitoring(enabled)
		return nil
	})
}

// CheckHealth inspects the remote process of an ACTIVE, monitored channel and
// updates per-output connectivity. Outputs past the failure threshold are
// reconnected, then failover is evaluated. A process that is gone or not
// running marks every enabled output unhealthy and yields ErrProcessNotRunning.
func (m *Manager) CheckHealth(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("check_health", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.checkHealth(ctx, e)
}

func (m *Manager) checkHealth(ctx context.Context, e *entry) error {
	cur := e.snapshot()
	if cur.Status != channel.StatusActive || !cur.HealthMonitoring {
		return nil
	}
	if !cur.IsLive() {
		return ErrNoProcess
	}
	client := m.Client()
	if client == nil {
		return ErrNoClient
	}

	present, running, err := m.inspect(ctx, client, &cur)
	if err != nil {
		return err
	}

	now := m.now()
	var unhealthy []int
	for i := range cur.Outputs {
		if !cur.Outputs[i].Enabled {
			continue
		}
		_, ok := present[cur.Outputs[i].RemoteID()]
		healthy := running && ok
		cur.RecordHealth(i, healthy, now)
		m.metrics.RecordHealthCheck(healthy)
		if !healthy {
			unhealthy = append(unhealthy, i)
		}
	}
	m.commit(ctx, e, cur)

	e.mu.Lock()
	e.lastHealth = now
	e.mu.Unlock()

	if len(unhealthy) > 0 {
		m.log.Warn("unhealthy outputs",
			zap.String("channel_id", cur.ID),
			zap.Ints("outputs", unhealthy))
		m.emit(ctx, e, events.Event{
			ChannelID: cur.ID,
			Type:      events.TypeHealth,
			Output:    channel.NoIndex,
			Message:   fmt.Sprintf("%d unhealthy output(s)", len(unhealthy)),
		})
	}
	// nothing to reattach to; the channel needs a restart
	if !running {
		return fmt.Errorf("%w: %s", ErrProcessNotRunning, cur.ProcessRef)
	}
	if len(unhealthy) == 0 {
		return nil
	}

	var errs []error
	for _, i := range unhealthy {
		o := &cur.Outputs[i]
		if !o.AutoReconnect || o.ConsecutiveFailures < cur.FailureThreshold {
			continue
		}
		if err := m.reconnectOutput(ctx, e, i); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.checkFailover(ctx, e); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// inspect returns the remote ids attached to the process of ch and whether it
// runs. A vanished process reports every output as missing.
func (m *Manager) inspect(ctx context.Context, client restreamer.Client, ch *channel.Channel) (map[string]struct{}, bool, error) {
	present := make(map[string]struct{})

	proc, err := restreamer.FindByReference(ctx, client, ch.ProcessRef)
	if errors.Is(err, restreamer.ErrProcessNotFound) {
		return present, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find process: %w", err)
	}
	if !proc.Running() {
		return present, false, nil
	}

	ids, err := client.GetProcessOutputs(ctx, proc.ID)
	if err != nil {
		return nil, false, fmt.Errorf("list process outputs: %w", err)
	}
	for _, id := range ids {
		present[id] = struct{}{}
	}
	return present, true, nil
}

// ReconnectOutput re-attaches one output of an ACTIVE channel, retrying with
// a fixed delay up to MaxReconnectAttempts times (at least once). When every
// attempt fails the output is disabled and ErrReconnectExhausted returned.
func (m *Manager) ReconnectOutput(ctx context.Context, id string, index int) (err error) {
	defer func() { m.metrics.RecordOperation("reconnect_output", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.reconnectOutput(ctx, e, index)
}

func (m *Manager) reconnectOutput(ctx context.Context, e *entry, index int) error {
	cur := e.snapshot()
	if _, err := cur.Output(index); err != nil {
		return err
	}
	client, err := m.liveClient(&cur)
	if err != nil {
		return err
	}

	attempts := max(cur.MaxReconnectAttempts, 1)
	delay := time.Duration(cur.ReconnectDelay) * time.Second
	log := m.log.With(zap.String("channel_id", cur.ID), zap.Int("output", index))

	var lastErr error
	for a := uint32(1); a <= attempts; a++ {
		if a > 1 {
			if err := m.sleep(ctx, delay); err != nil {
				return fmt.Errorf("reconnect output %d: %w", index, err)
			}
		}

		lastErr = m.reattachOutput(ctx, client, &cur, index)
		m.metrics.RecordReconnect(lastErr)
		if lastErr == nil {
			o := &cur.Outputs[index]
			o.Connected = true
			o.ConsecutiveFailures = 0
			m.commit(ctx, e, cur)
			log.Info("output reconnected", zap.Uint32("attempt", a))
			m.emitOutput(ctx, e, events.TypeReconnect, index, fmt.Sprintf("reconnected after %d attempt(s)", a))
			return nil
		}
		log.Warn("reconnect attempt failed",
			zap.Uint32("attempt", a),
			zap.Uint32("max_attempts", attempts),
			zap.Error(lastErr))
	}

	o := &cur.Outputs[index]
	o.Enabled = false
	o.Connected = false
	m.commit(ctx, e, cur)
	m.persist(ctx, &cur)

	log.Error("reconnect attempts exhausted", zap.Uint32("attempts", attempts))
	m.emitOutput(ctx, e, events.TypeReconnectGave, index, lastErr.Error())
	return fmt.Errorf("output %d: %w: %v", index, ErrReconnectExhausted, lastErr)
}

// reattachOutput removes and re-adds output index in the remote process.
func (m *Manager) reattachOutput(ctx context.Context, client restreamer.Client, ch *channel.Channel, index int) error {
	proc, err := m.findProcess(ctx, client, ch)
	if err != nil {
		return err
	}
	o := &ch.Outputs[index]
	if err := client.RemoveProcessOutput(ctx, proc.ID, o.RemoteID()); err != nil && !errors.Is(err, restreamer.ErrProcessNotFound) {
		return fmt.Errorf("detach: %w", err)
	}
	if err := client.AddProcessOutput(ctx, proc.ID, processOutput(ch, o)); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}

// UpdateStats pulls the runtime of the remote process into the channel:
// process counters into Stats, bitrate and bytes onto connected outputs.
func (m *Manager) UpdateStats(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("update_stats", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.updateStats(ctx, e)
}

func (m *Manager) updateStats(ctx context.Context, e *entry) error {
	cur := e.snapshot()
	if cur.Status != channel.StatusActive {
		return nil
	}
	client := m.Client()
	if client == nil {
		return ErrNoClient
	}
	proc, err := m.findProcess(ctx, client, &cur)
	if err != nil {
		return err
	}
	st, err := client.GetProcessState(ctx, proc.ID)
	if err != nil {
		return fmt.Errorf("process state: %w", err)
	}

	for i := range cur.Outputs {
		o := &cur.Outputs[i]
		if !o.Connected {
			continue
		}
		// tee writes the same stream to every destination
		o.BytesSent = st.BytesWritten
		o.CurrentBitrate = st.Bitrate
		o.DroppedFrames = uint32(min(st.DroppedFrames, uint64(^uint32(0))))
	}
	m.commit(ctx, e, cur)

	e.mu.Lock()
	e.stats = ProcessStats{
		ProcessID:     proc.ID,
		State:         proc.State,
		Uptime:        proc.Uptime,
		CPUUsage:      proc.CPUUsage,
		Memory:        proc.Memory,
		Bitrate:       st.Bitrate,
		FPS:           st.FPS,
		Frames:        st.Frames,
		DroppedFrames: st.DroppedFrames,
		BytesWritten:  st.BytesWritten,
		UpdatedAt:     m.now(),
	}
	e.mu.Unlock()
	return nil
}

// Stats returns the last process runtime recorded by UpdateStats.
func (m *Manager) Stats(id string) (ProcessStats, error) {
	e, err := m.entry(id)
	if err != nil {
		return ProcessStats{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats, nil
}
