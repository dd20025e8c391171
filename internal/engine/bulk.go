package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"go.uber.org/zap"
)

// Bulk operations validate the whole index set before touching anything:
// an empty set, an out-of-range index or a forbidden target rejects the
// batch. Remote side effects on ACTIVE channels are then attempted for
// every index and the failures joined.

// BulkSetEnabled enables or disables the outputs at indices. Backups cannot
// be enabled this way. On an ACTIVE channel each change is applied to the
// remote process.
func (m *Manager) BulkSetEnabled(ctx context.Context, id string, indices []int, enabled bool) (err error) {
	defer func() { m.metrics.RecordOperation("bulk_set_enabled", err) }()
	return m.setEnabled(ctx, id, indices, enabled, false)
}

// BulkStartOutputs attaches the outputs at indices to the running process.
// Already enabled outputs are skipped.
func (m *Manager) BulkStartOutputs(ctx context.Context, id string, indices []int) (err error) {
	defer func() { m.metrics.RecordOperation("bulk_start_outputs", err) }()
	return m.setEnabled(ctx, id, indices, true, true)
}

// BulkStopOutputs detaches the outputs at indices from the running process.
// Already disabled outputs are skipped.
func (m *Manager) BulkStopOutputs(ctx context.Context, id string, indices []int) (err error) {
	defer func() { m.metrics.RecordOperation("bulk_stop_outputs", err) }()
	return m.setEnabled(ctx, id, indices, false, true)
}

func (m *Manager) setEnabled(ctx context.Context, id string, indices []int, enabled, requireLive bool) error {
	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	cur := e.snapshot()
	set, err := cur.ValidateIndices(indices)
	if err != nil {
		return err
	}
	if enabled {
		for _, i := range set {
			if cur.Outputs[i].IsBackup {
				return fmt.Errorf("%w: %d", ErrBackupOutput, i)
			}
		}
	}

	if requireLive && cur.Status != channel.StatusActive {
		return ErrNotActive
	}
	if !requireLive && (cur.Status != channel.StatusActive || !cur.IsLive()) {
		for _, i := range set {
			cur.Outputs[i].Enabled = enabled
		}
		m.commit(ctx, e, cur)
		m.persist(ctx, &cur)
		return nil
	}

	client, err := m.liveClient(&cur)
	if err != nil {
		return err
	}
	proc, err := m.findProcess(ctx, client, &cur)
	if err != nil {
		return err
	}

	var errs []error
	changed := 0
	for _, i := range set {
		o := &cur.Outputs[i]
		if o.Enabled == enabled {
			continue
		}
		var rerr error
		if enabled {
			rerr = client.AddProcessOutput(ctx, proc.ID, processOutput(&cur, o))
		} else {
			rerr = client.RemoveProcessOutput(ctx, proc.ID, o.RemoteID())
		}
		if rerr != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, rerr))
			continue
		}
		o.Enabled = enabled
		o.Connected = enabled
		changed++
	}

	if changed > 0 {
		m.commit(ctx, e, cur)
		m.persist(ctx, &cur)
	}
	m.log.Info("outputs toggled",
		zap.String("channel_id", cur.ID),
		zap.Bool("enabled", enabled),
		zap.Int("changed", changed),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// BulkDeleteOutputs removes every output at indices in one pass. On an
// ACTIVE channel the enabled ones are detached from the process first
// (failures are logged). A failed-over primary whose serving backup is
// deleted is re-attached before anything is detached; if that fails the
// batch is rejected.
func (m *Manager) BulkDeleteOutputs(ctx context.Context, id string, indices []int) (err error) {
	defer func() { m.metrics.RecordOperation("bulk_delete_outputs", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	cur := e.snapshot()
	set, err := cur.ValidateIndices(indices)
	if err != nil {
		return err
	}
	doomed := make(map[int]struct{}, len(set))
	for _, i := range set {
		doomed[i] = struct{}{}
	}

	var revived []int
	for i := range cur.Outputs {
		o := &cur.Outputs[i]
		if _, gone := doomed[i]; gone || !o.FailoverActive || !o.HasBackup() {
			continue
		}
		if _, gone := doomed[o.BackupIndex]; gone {
			revived = append(revived, i)
		}
	}

	if client, lerr := m.liveClient(&cur); lerr == nil {
		proc, perr := m.findProcess(ctx, client, &cur)
		switch {
		case perr != nil && len(revived) > 0:
			return perr
		case perr != nil:
			m.log.Warn("lookup process failed", zap.String("channel_id", cur.ID), zap.Error(perr))
		default:
			if err := m.reattach(ctx, client, proc.ID, &cur, revived); err != nil {
				return err
			}
			for _, i := range set {
				o := &cur.Outputs[i]
				if !o.Enabled {
					continue
				}
				if err := client.RemoveProcessOutput(ctx, proc.ID, o.RemoteID()); err != nil {
					m.log.Warn("detach deleted output failed",
						zap.String("channel_id", cur.ID),
						zap.Int("output", i),
						zap.Error(err))
				}
			}
		}
	}

	if _, err := cur.DeleteOutputs(set); err != nil {
		return err
	}
	m.commit(ctx, e, cur)
	m.persist(ctx, &cur)
	return nil
}

// reattach adds the outputs at indices back to process procID and marks them
// connected. On failure the ones already added are detached again.
func (m *Manager) reattach(ctx context.Context, client restreamer.Client, procID string, ch *channel.Channel, indices []int) error {
	for n, i := range indices {
		if err := client.AddProcessOutput(ctx, procID, processOutput(ch, &ch.Outputs[i])); err != nil {
			for _, j := range indices[:n] {
				if rerr := client.RemoveProcessOutput(ctx, procID, ch.Outputs[j].RemoteID()); rerr != nil {
					m.log.Warn("roll back re-attach failed",
						zap.String("channel_id", ch.ID),
						zap.Int("output", j),
						zap.Error(rerr))
				}
			}
			return fmt.Errorf("re-attach primary %d: %w", i, err)
		}
	}
	for _, i := range indices {
		ch.Outputs[i].Connected = true
	}
	return nil
}

// BulkUpdateEncoding applies enc to every output at indices. INACTIVE-like
// channels are updated locally; on an ACTIVE channel every output goes
// through the live update and only the successful ones are stored.
func (m *Manager) BulkUpdateEncoding(ctx context.Context, id string, indices []int, enc *channel.Encoding) (err error) {
	defer func() { m.metrics.RecordOperation("bulk_update_encoding", err) }()

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
	set, err := cur.ValidateIndices(indices)
	if err != nil {
		return err
	}

	if cur.Status != channel.StatusActive {
		for _, i := range set {
			cur.Outputs[i].Encoding = *enc
		}
		m.commit(ctx, e, cur)
		m.persist(ctx, &cur)
		return nil
	}

	client, err := m.liveClient(&cur)
	if err != nil {
		return err
	}
	proc, err := m.findProcess(ctx, client, &cur)
	if err != nil {
		return err
	}

	var errs []error
	for _, i := range set {
		if err := m.pushEncoding(ctx, client, proc.ID, &cur, i, enc); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) < len(set) {
		m.commit(ctx, e, cur)
		m.persist(ctx, &cur)
	}
	return errors.Join(errs...)
}
