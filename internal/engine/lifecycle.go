package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"go.uber.org/zap"
)

// failMessage is the operator-facing LastError text for a start failure.
func failMessage(err error) string {
	switch {
	case errors.Is(err, channel.ErrNoEnabledOutputs):
		return "No enabled outputs configured"
	case errors.Is(err, channel.ErrNoInputURL):
		return "No input URL configured"
	case errors.Is(err, ErrNoClient):
		return "No process client configured"
	}
	return err.Error()
}

// remoteError prefers the client's own description of the last failure.
func remoteError(c restreamer.Client, err error) string {
	if msg := c.LastError(); msg != "" {
		return msg
	}
	return err.Error()
}

// processOutput describes output o of ch for the remote process.
func processOutput(ch *channel.Channel, o *channel.Output) restreamer.ProcessOutput {
	return restreamer.ProcessOutput{
		ID:          o.RemoteID(),
		URL:         o.URL(),
		VideoFilter: channel.VideoFilter(ch.EffectiveOrientation(), o.TargetOrientation),
	}
}

// processSpec builds the remote process for the enabled outputs of ch.
// A video filter is applied to the whole process only when every enabled
// output asks for the same one.
func processSpec(ch *channel.Channel) restreamer.ProcessSpec {
	spec := restreamer.ProcessSpec{Reference: ch.ID, InputURL: ch.InputURL}
	common, first := "", true
	for i := range ch.Outputs {
		o := &ch.Outputs[i]
		if !o.Enabled {
			continue
		}
		po := processOutput(ch, o)
		spec.Outputs = append(spec.Outputs, po)
		if first {
			common, first = po.VideoFilter, false
		} else if common != po.VideoFilter {
			common = ""
		}
	}
	spec.VideoFilter = common
	return spec
}

// Start creates the remote process of a channel. Starting an ACTIVE or
// STARTING channel is a no-op; ERROR is a valid starting point.
func (m *Manager) Start(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("start", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.start(ctx, e)
}

func (m *Manager) start(ctx context.Context, e *entry) error {
	cur := e.snapshot()
	switch cur.Status {
	case channel.StatusActive, channel.StatusStarting:
		return nil
	case channel.StatusPreview, channel.StatusStopping:
		return fmt.Errorf("start from %s: %w", cur.Status, ErrInvalidState)
	}

	client := m.Client()
	pre := cur.StartPrecondition()
	if pre == nil && client == nil {
		pre = ErrNoClient
	}
	if pre != nil {
		cur.Fail(failMessage(pre))
		m.commit(ctx, e, cur)
		return fmt.Errorf("start: %w", pre)
	}

	cur.Status = channel.StatusStarting
	cur.LastError = ""
	m.commit(ctx, e, cur)

	spec := processSpec(&cur)
	if err := client.CreateProcess(ctx, spec); err != nil {
		cur.ProcessRef = ""
		cur.Fail(remoteError(client, err))
		m.commit(ctx, e, cur)
		m.log.Error("start channel failed", zap.String("channel_id", cur.ID), zap.Error(err))
		return fmt.Errorf("create process: %w", err)
	}

	cur.Status = channel.StatusActive
	cur.ProcessRef = spec.Reference
	cur.LastError = ""
	for i := range cur.Outputs {
		if cur.Outputs[i].Enabled {
			cur.Outputs[i].Connected = true
		}
	}
	m.commit(ctx, e, cur)
	m.log.Info("channel started",
		zap.String("channel_id", cur.ID),
		zap.Int("outputs", len(spec.Outputs)))
	return nil
}

// Stop tears down the remote process. Remote failures are logged and the
// channel still ends INACTIVE.
func (m *Manager) Stop(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("stop", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.stop(ctx, e)
}

func (m *Manager) stop(ctx context.Context, e *entry) error {
	cur := e.snapshot()
	if cur.Status == channel.StatusInactive {
		return nil
	}

	cur.Status = channel.StatusStopping
	m.commit(ctx, e, cur)

	if client := m.Client(); cur.IsLive() && client != nil {
		m.teardown(ctx, client, cur.ID, cur.ProcessRef)
	}

	cur.Status = channel.StatusInactive
	cur.ProcessRef = ""
	cur.LastError = ""
	cur.Disconnect()
	cur.ClearPreview()
	m.commit(ctx, e, cur)

	e.mu.Lock()
	e.stats = ProcessStats{}
	e.mu.Unlock()

	m.log.Info("channel stopped", zap.String("channel_id", cur.ID))
	return nil
}

// teardown stops and deletes the process with reference ref, best-effort.
func (m *Manager) teardown(ctx context.Context, client restreamer.Client, id, ref string) {
	log := m.log.With(zap.String("channel_id", id))

	proc, err := restreamer.FindByReference(ctx, client, ref)
	if err != nil {
		if !errors.Is(err, restreamer.ErrProcessNotFound) {
			log.Warn("lookup process failed", zap.Error(err))
		}
		return
	}
	if err := client.StopProcess(ctx, proc.ID); err != nil {
		log.Warn("stop process failed", zap.String("process_id", proc.ID), zap.Error(err))
	}
	if err := client.DeleteProcess(ctx, proc.ID); err != nil {
		log.Warn("delete process failed", zap.String("process_id", proc.ID), zap.Error(err))
	}
}

// Restart is Stop followed by Start under one gate hold; it is not atomic
// with respect to the remote service.
func (m *Manager) Restart(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("restart", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	if err := m.stop(ctx, e); err != nil {
		return err
	}
	return m.start(ctx, e)
}

// findProcess resolves the live process of ch.
func (m *Manager) findProcess(ctx context.Context, client restreamer.Client, ch *channel.Channel) (*restreamer.Process, error) {
	if !ch.IsLive() {
		return nil, ErrNoProcess
	}
	proc, err := restreamer.FindByReference(ctx, client, ch.ProcessRef)
	if err != nil {
		return nil, fmt.Errorf("find process: %w", err)
	}
	return proc, nil
}

// liveClient checks that ch is ACTIVE with a process and a client is bound.
func (m *Manager) liveClient(ch *channel.Channel) (restreamer.Client, error) {
	if ch.Status != channel.StatusActive {
		return nil, ErrNotActive
	}
	if !ch.IsLive() {
		return nil, ErrNoProcess
	}
	client := m.Client()
	if client == nil {
		return nil, ErrNoClient
	}
	return client, nil
}
