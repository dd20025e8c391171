package engine

import (
	"context"
	"fmt"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
	"go.uber.org/zap"
)

// StartPreview puts an INACTIVE channel into PREVIEW for durationSec seconds
// (0 = until cancelled). No remote process is created.
func (m *Manager) StartPreview(ctx context.Context, id string, durationSec uint32) error {
	return m.mutate(ctx, id, "start_preview", func(ch *channel.Channel) error {
		if ch.Status != channel.StatusInactive {
			return fmt.Errorf("preview from %s: %w", ch.Status, ErrInvalidState)
		}
		ch.BeginPreview(durationSec, m.now())
		return nil
	})
}

// PreviewToLive promotes a PREVIEW channel to ACTIVE. With a client bound the
// remote process is created first; on failure the channel stays in PREVIEW
// with LastError set.
func (m *Manager) PreviewToLive(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("preview_to_live", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	cur := e.snapshot()
	if cur.Status != channel.StatusPreview {
		return fmt.Errorf("go live from %s: %w", cur.Status, ErrInvalidState)
	}

	if client := m.Client(); client != nil {
		if err := cur.StartPrecondition(); err != nil {
			cur.LastError = failMessage(err)
			m.commit(ctx, e, cur)
			return fmt.Errorf("go live: %w", err)
		}
		spec := processSpec(&cur)
		if err := client.CreateProcess(ctx, spec); err != nil {
			cur.LastError = remoteError(client, err)
			m.commit(ctx, e, cur)
			return fmt.Errorf("create process: %w", err)
		}
		cur.ProcessRef = spec.Reference
		for i := range cur.Outputs {
			if cur.Outputs[i].Enabled {
				cur.Outputs[i].Connected = true
			}
		}
	}

	cur.ClearPreview()
	cur.Status = channel.StatusActive
	cur.LastError = ""
	m.commit(ctx, e, cur)
	return nil
}

// CancelPreview returns a PREVIEW channel to INACTIVE.
func (m *Manager) CancelPreview(ctx context.Context, id string) error {
	return m.mutate(ctx, id, "cancel_preview", func(ch *channel.Channel) error {
		if ch.Status != channel.StatusPreview {
			return fmt.Errorf("cancel preview from %s: %w", ch.Status, ErrInvalidState)
		}
		ch.ClearPreview()
		ch.Status = channel.StatusInactive
		return nil
	})
}

// PreviewTimedOut reports whether the preview window of the channel elapsed.
func (m *Manager) PreviewTimedOut(id string) (bool, error) {
	ch, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return ch.PreviewTimedOut(m.now()), nil
}

// expirePreview cancels an elapsed preview. The caller holds the gate.
func (m *Manager) expirePreview(ctx context.Context, e *entry) {
	cur := e.snapshot()
	if cur.Status != channel.StatusPreview || !cur.PreviewTimedOut(m.now()) {
		return
	}
	dur := cur.PreviewDuration
	cur.ClearPreview()
	cur.Status = channel.StatusInactive
	m.commit(ctx, e, cur)

	m.log.Info("preview timed out", zap.String("channel_id", cur.ID), zap.Uint32("duration_sec", dur))
	m.emit(ctx, e, events.Event{
		ChannelID: cur.ID,
		Type:      events.TypePreviewTimeout,
		Output:    channel.NoIndex,
		Message:   fmt.Sprintf("preview ended after %ds", dur),
	})
}
