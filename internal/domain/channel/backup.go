package channel

import (
	"fmt"
	"time"
)

// SetBackup links backup as the failover target of primary.
// A previous backup of primary is unlinked. The backup starts disabled.
func (ch *Channel) SetBackup(primary, backup int) error {
	if !ch.validIndex(primary) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, primary)
	}
	if !ch.validIndex(backup) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, backup)
	}
	if primary == backup {
		return ErrSelfBackup
	}

	p := &ch.Outputs[primary]
	b := &ch.Outputs[backup]

	if p.IsBackup {
		return fmt.Errorf("%w: primary %d is a backup", ErrChainedBackup, primary)
	}
	if b.HasBackup() {
		return fmt.Errorf("%w: output %d has its own backup", ErrChainedBackup, backup)
	}
	if b.IsBackup && b.PrimaryIndex != primary {
		return fmt.Errorf("%w: %d already backs up output %d", ErrBackupOutput, backup, b.PrimaryIndex)
	}

	if p.HasBackup() && p.BackupIndex != backup {
		ch.unlink(primary)
	}

	p.BackupIndex = backup
	b.IsBackup = true
	b.PrimaryIndex = primary
	b.Enabled = false
	return nil
}

// RemoveBackup drops the backup link of primary.
func (ch *Channel) RemoveBackup(primary int) error {
	if !ch.validIndex(primary) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, primary)
	}
	if !ch.Outputs[primary].HasBackup() {
		return fmt.Errorf("%w: %d", ErrNoBackup, primary)
	}
	ch.unlink(primary)
	return nil
}

// BackupOf returns the index of the backup linked to primary.
func (ch *Channel) BackupOf(primary int) (int, error) {
	if !ch.validIndex(primary) {
		return NoIndex, fmt.Errorf("%w: %d", ErrInvalidIndex, primary)
	}
	b := ch.Outputs[primary].BackupIndex
	if b == NoIndex {
		return NoIndex, fmt.Errorf("%w: %d", ErrNoBackup, primary)
	}
	return b, nil
}

// MarkFailover flags primary and its backup as failed over.
func (ch *Channel) MarkFailover(primary int, now time.Time) error {
	b, err := ch.BackupOf(primary)
	if err != nil {
		return err
	}
	for _, i := range []int{primary, b} {
		ch.Outputs[i].FailoverActive = true
		ch.Outputs[i].FailoverStart = now
	}
	return nil
}

// ClearFailover clears the failover flags on primary and its backup and
// resets the primary's failure counter.
func (ch *Channel) ClearFailover(primary int) error {
	b, err := ch.BackupOf(primary)
	if err != nil {
		return err
	}
	ch.Outputs[primary].FailoverActive = false
	ch.Outputs[primary].FailoverStart = time.Time{}
	ch.Outputs[primary].ConsecutiveFailures = 0
	ch.Outputs[b].FailoverActive = false
	ch.Outputs[b].FailoverStart = time.Time{}
	return nil
}

// unlink drops the link of primary. A failed-over primary is enabled again
// since nothing stands in for it any more.
func (ch *Channel) unlink(primary int) {
	p := &ch.Outputs[primary]
	if b := p.BackupIndex; ch.validIndex(b) {
		ch.Outputs[b].IsBackup = false
		ch.Outputs[b].PrimaryIndex = NoIndex
		ch.Outputs[b].FailoverActive = false
		ch.Outputs[b].FailoverStart = time.Time{}
	}
	if p.FailoverActive {
		p.FailoverActive = false
		p.FailoverStart = time.Time{}
		p.ConsecutiveFailures = 0
		p.Enabled = true
	}
	p.BackupIndex = NoIndex
}
