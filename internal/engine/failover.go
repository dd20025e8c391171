package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
	"go.uber.org/zap"
)

// SetBackup links backup as the standby of primary. An existing backup of
// primary is unlinked first; the new backup is disabled. On an ACTIVE channel
// an enabled backup is detached from the process before the link is stored.
// A failed-over primary must be restored before its backup changes.
func (m *Manager) SetBackup(ctx context.Context, id string, primary, backup int) (err error) {
	defer func() { m.metrics.RecordOperation("set_backup", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	cur := e.snapshot()
	next := e.snapshot()
	if err := next.SetBackup(primary, backup); err != nil {
		return fmt.Errorf("set_backup: %w", err)
	}
	if cur.Outputs[primary].FailoverActive {
		return fmt.Errorf("%w: output %d is failed over", ErrInvalidState, primary)
	}

	if b := &cur.Outputs[backup]; b.Enabled {
		if client, lerr := m.liveClient(&cur); lerr == nil {
			proc, err := m.findProcess(ctx, client, &cur)
			if err != nil {
				return err
			}
			if err := client.RemoveProcessOutput(ctx, proc.ID, b.RemoteID()); err != nil {
				return fmt.Errorf("detach backup: %w", err)
			}
		}
	}
	next.Outputs[backup].Connected = false

	m.commit(ctx, e, next)
	m.persist(ctx, &next)
	return nil
}

// RemoveBackup unlinks the backup of primary. A failed-over primary is
// restored first so it is serving again once the link is gone.
func (m *Manager) RemoveBackup(ctx context.Context, id string, primary int) (err error) {
	defer func() { m.metrics.RecordOperation("remove_backup", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	cur := e.snapshot()
	o, err := cur.Output(primary)
	if err != nil {
		return fmt.Errorf("remove_backup: %w", err)
	}
	if o.FailoverActive {
		if err := m.restorePrimary(ctx, e, primary); err != nil {
			return fmt.Errorf("restore primary: %w", err)
		}
	}

	next := e.snapshot()
	if err := next.RemoveBackup(primary); err != nil {
		return fmt.Errorf("remove_backup: %w", err)
	}
	m.commit(ctx, e, next)
	m.persist(ctx, &next)
	return nil
}

// TriggerFailover switches primary over to its backup. On an ACTIVE channel
// the remote process is rewired first and the flags only change once the
// backup has been attached.
func (m *Manager) TriggerFailover(ctx context.Context, id string, primary int) (err error) {
	defer func() { m.metrics.RecordOperation("trigger_failover", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.triggerFailover(ctx, e, primary)
}

func (m *Manager) triggerFailover(ctx context.Context, e *entry, primary int) error {
	cur := e.snapshot()
	backup, err := cur.BackupOf(primary)
	if err != nil {
		return err
	}
	if cur.Outputs[primary].FailoverActive {
		return nil
	}
	log := m.log.With(zap.String("channel_id", cur.ID), zap.Int("primary", primary), zap.Int("backup", backup))

	if cur.Status == channel.StatusActive {
		client, err := m.liveClient(&cur)
		if err != nil {
			return err
		}
		proc, err := m.findProcess(ctx, client, &cur)
		if err != nil {
			return err
		}

		p, b := &cur.Outputs[primary], &cur.Outputs[backup]
		if err := client.RemoveProcessOutput(ctx, proc.ID, p.RemoteID()); err != nil {
			log.Warn("detach primary failed", zap.Error(err))
		}
		if err := client.AddProcessOutput(ctx, proc.ID, processOutput(&cur, b)); err != nil {
			if rerr := client.AddProcessOutput(ctx, proc.ID, processOutput(&cur, p)); rerr != nil {
				log.Error("re-attach primary failed", zap.Error(rerr))
			}
			return fmt.Errorf("attach backup: %w", err)
		}
		p.Enabled, p.Connected = false, false
		b.Enabled, b.Connected = true, true
	}

	if err := cur.MarkFailover(primary, m.now()); err != nil {
		return err
	}
	m.commit(ctx, e, cur)
	m.persist(ctx, &cur)
	m.metrics.RecordFailover("trigger")

	log.Warn("failover triggered")
	m.emitOutput(ctx, e, events.TypeFailover, primary, fmt.Sprintf("switched to backup output %d", backup))
	return nil
}

// RestorePrimary switches a failed-over primary back from its backup.
func (m *Manager) RestorePrimary(ctx context.Context, id string, primary int) (err error) {
	defer func() { m.metrics.RecordOperation("restore_primary", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.restorePrimary(ctx, e, primary)
}

func (m *Manager) restorePrimary(ctx context.Context, e *entry, primary int) error {
	cur := e.snapshot()
	o, err := cur.Output(primary)
	if err != nil {
		return err
	}
	if !o.FailoverActive || !o.HasBackup() {
		return nil
	}
	backup := o.BackupIndex
	log := m.log.With(zap.String("channel_id", cur.ID), zap.Int("primary", primary), zap.Int("backup", backup))

	p, b := &cur.Outputs[primary], &cur.Outputs[backup]
	if cur.Status == channel.StatusActive {
		client, err := m.liveClient(&cur)
		if err != nil {
			return err
		}
		proc, err := m.findProcess(ctx, client, &cur)
		if err != nil {
			return err
		}
		if err := client.AddProcessOutput(ctx, proc.ID, processOutput(&cur, p)); err != nil {
			return fmt.Errorf("attach primary: %w", err)
		}
		if err := client.RemoveProcessOutput(ctx, proc.ID, b.RemoteID()); err != nil {
			log.Warn("detach backup failed", zap.Error(err))
		}
		p.Connected = true
		b.Connected = false
	}

	p.Enabled = true
	b.Enabled = false
	if err := cur.ClearFailover(primary); err != nil {
		return err
	}
	m.commit(ctx, e, cur)
	m.persist(ctx, &cur)
	m.metrics.RecordFailover("restore")

	log.Info("primary restored")
	m.emitOutput(ctx, e, events.TypeRestore, primary, fmt.Sprintf("restored from backup output %d", backup))
	return nil
}

// CheckFailover fails over unhealthy primaries and restores recovered ones.
// Only ACTIVE channels are considered.
func (m *Manager) CheckFailover(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("check_failover", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}
	return m.checkFailover(ctx, e)
}

func (m *Manager) checkFailover(ctx context.Context, e *entry) error {
	cur := e.snapshot()
	if cur.Status != channel.StatusActive {
		return nil
	}

	var errs []error
	for i := range cur.Outputs {
		switch {
		case cur.NeedsFailover(i):
			if err := m.triggerFailover(ctx, e, i); err != nil {
				errs = append(errs, fmt.Errorf("failover output %d: %w", i, err))
			}
		case cur.CanRestore(i):
			if err := m.restorePrimary(ctx, e, i); err != nil {
				errs = append(errs, fmt.Errorf("restore output %d: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}
