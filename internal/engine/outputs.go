package engine

import (
	"context"
	"fmt"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddOutput appends an output to the channel and returns its index.
// The output joins the remote process on the next start.
func (m *Manager) AddOutput(ctx context.Context, id string, spec channel.OutputSpec) (int, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Encoding != nil {
		if err := channel.ValidateEncoding(spec.Encoding); err != nil {
			return channel.NoIndex, err
		}
	}
	if spec.CustomURL != "" {
		if err := channel.ValidateOutputURL(spec.CustomURL); err != nil {
			return channel.NoIndex, fmt.Errorf("custom url: %w", err)
		}
	}

	idx := channel.NoIndex
	err := m.mutate(ctx, id, "add_output", func(ch *channel.Channel) error {
		i, err := ch.AddOutput(spec)
		if err != nil {
			return err
		}
		idx = i
		return nil
	})
	if err != nil {
		return channel.NoIndex, err
	}
	return idx, nil
}

// RemoveOutput deletes one output; later outputs shift down.
func (m *Manager) RemoveOutput(ctx context.Context, id string, index int) error {
	return m.BulkDeleteOutputs(ctx, id, []int{index})
}

// SetOutputEnabled toggles one output, live when the channel is ACTIVE.
func (m *Manager) SetOutputEnabled(ctx context.Context, id string, index int, enabled bool) error {
	return m.BulkSetEnabled(ctx, id, []int{index}, enabled)
}

// UpdateOutputEncoding replaces the stored encoding of one output.
// A running process is not touched; see UpdateOutputEncodingLive.
func (m *Manager) UpdateOutputEncoding(ctx context.Context, id string, index int, enc *channel.Encoding) error {
	if enc == nil {
		return ErrNilEncoding
	}
	if err := channel.ValidateEncoding(enc); err != nil {
		return err
	}
	return m.mutate(ctx, id, "update_output_encoding", func(ch *channel.Channel) error {
		return ch.SetOutputEncoding(index, enc)
	})
}

func encodingParams(enc *channel.Encoding) restreamer.EncodingParams {
	return restreamer.EncodingParams{
		VideoBitrateKbps: enc.Bitrate,
		AudioBitrateKbps: enc.AudioBitrate,
		Width:            enc.Width,
		Height:           enc.Height,
		FPSNum:           enc.FPSNum,
		FPSDen:           enc.FPSDen,
	}
}

// UpdateOutputEncodingLive pushes a new encoding to the running process and
// then stores it. Nothing changes unless the remote update succeeds.
func (m *Manager) UpdateOutputEncodingLive(ctx context.Context, id string, index int, enc *channel.Encoding) (err error) {
	defer func() { m.metrics.RecordOperation("update_output_encoding_live", err) }()

	if enc == nil {
		return ErrNilEncoding
	}
	if err := channel.ValidateEncoding(enc); err != nil {
		return err
	}

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	cur := e.snapshot()
	client, err := m.liveClient(&cur)
	if err != nil {
		return err
	}
	o, err := cur.Output(index)
	if err != nil {
		return err
	}
	proc, err := m.findProcess(ctx, client, &cur)
	if err != nil {
		return err
	}

	if err := m.pushEncoding(ctx, client, proc.ID, &cur, index, enc); err != nil {
		return err
	}
	m.commit(ctx, e, cur)
	m.persist(ctx, &cur)
	m.log.Info("output encoding updated live",
		zap.String("channel_id", cur.ID),
		zap.Int("output", index),
		zap.String("remote_id", o.RemoteID()))
	return nil
}

// pushEncoding updates output index of the process and, on success, of ch.
func (m *Manager) pushEncoding(ctx context.Context, client restreamer.Client, processID string, ch *channel.Channel, index int, enc *channel.Encoding) error {
	o := &ch.Outputs[index]
	if err := client.UpdateOutputEncoding(ctx, processID, o.RemoteID(), encodingParams(enc)); err != nil {
		return fmt.Errorf("output %d: update encoding: %w", index, err)
	}
	o.Encoding = *enc
	return nil
}

// emitOutput records an output-level event.
func (m *Manager) emitOutput(ctx context.Context, e *entry, t events.Type, index int, msg string) {
	m.emit(ctx, e, events.Event{
		ChannelID: e.id,
		Type:      t,
		Output:    index,
		Message:   msg,
	})
}
