package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
)

func TestSetBackupThroughManager(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 3)

	require.NoError(t, f.m.SetBackup(ctx, id, 0, 1))
	ch := f.get(t, id)
	assert.Equal(t, 1, ch.Outputs[0].BackupIndex)
	assert.True(t, ch.Outputs[1].IsBackup)
	assert.False(t, ch.Outputs[1].Enabled)

	assert.ErrorIs(t, f.m.SetBackup(ctx, id, 0, 0), channel.ErrSelfBackup)
	assert.ErrorIs(t, f.m.SetBackup(ctx, id, 1, 2), channel.ErrChainedBackup)
	assert.ErrorIs(t, f.m.SetBackup(ctx, id, 0, 7), ErrInvalidIndex)

	// replacing the backup unlinks the old one
	require.NoError(t, f.m.SetBackup(ctx, id, 0, 2))
	ch = f.get(t, id)
	assert.Equal(t, 2, ch.Outputs[0].BackupIndex)
	assert.False(t, ch.Outputs[1].IsBackup)

	require.NoError(t, f.m.RemoveBackup(ctx, id, 0))
	assert.ErrorIs(t, f.m.RemoveBackup(ctx, id, 0), ErrNoBackup)
}

func TestSetBackupActiveDetachesBackup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 3)
	require.NoError(t, f.m.Start(ctx, id))
	ch := f.get(t, id)
	out0, out2 := ch.Outputs[0].RemoteID(), ch.Outputs[2].RemoteID()
	require.Len(t, f.client.outputIDs(id), 3)

	f.client.failOn("RemoveProcessOutput", 1)
	require.ErrorIs(t, f.m.SetBackup(ctx, id, 0, 1), errRemote)
	ch = f.get(t, id)
	assert.Equal(t, channel.NoIndex, ch.Outputs[0].BackupIndex, "link not stored when detach fails")
	assert.True(t, ch.Outputs[1].Enabled)
	assert.Len(t, f.client.outputIDs(id), 3)

	require.NoError(t, f.m.SetBackup(ctx, id, 0, 1))
	ch = f.get(t, id)
	assert.Equal(t, 1, ch.Outputs[0].BackupIndex)
	assert.False(t, ch.Outputs[1].Enabled)
	assert.False(t, ch.Outputs[1].Connected)
	assert.ElementsMatch(t, []string{out0, out2}, f.client.outputIDs(id))
	assert.Equal(t, 2, f.client.count("RemoveProcessOutput"))
}

func TestBackupChangesDuringFailover(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 3)
	require.NoError(t, f.m.SetBackup(ctx, id, 0, 1))
	require.NoError(t, f.m.Start(ctx, id))
	ch := f.get(t, id)
	primary, out2 := ch.Outputs[0].RemoteID(), ch.Outputs[2].RemoteID()
	require.NoError(t, f.m.TriggerFailover(ctx, id, 0))

	assert.ErrorIs(t, f.m.SetBackup(ctx, id, 0, 2), ErrInvalidState)
	assert.Equal(t, 1, f.get(t, id).Outputs[0].BackupIndex)

	require.NoError(t, f.m.RemoveBackup(ctx, id, 0))
	ch = f.get(t, id)
	assert.True(t, ch.Outputs[0].Enabled)
	assert.True(t, ch.Outputs[0].Connected)
	assert.False(t, ch.Outputs[0].FailoverActive)
	assert.Equal(t, channel.NoIndex, ch.Outputs[0].BackupIndex)
	assert.False(t, ch.Outputs[1].IsBackup)
	assert.False(t, ch.Outputs[1].Enabled)
	assert.ElementsMatch(t, []string{primary, out2}, f.client.outputIDs(id))
	assert.Contains(t, f.pub.types(), events.TypeRestore)
}

func TestTriggerFailoverInactive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 3)
	require.NoError(t, f.m.SetBackup(ctx, id, 0, 1))

	assert.ErrorIs(t, f.m.TriggerFailover(ctx, id, 9), ErrInvalidIndex)
	assert.ErrorIs(t, f.m.TriggerFailover(ctx, id, 2), ErrNoBackup)

	require.NoError(t, f.m.TriggerFailover(ctx, id, 0))
	ch := f.get(t, id)
	assert.True(t, ch.Outputs[0].FailoverActive)
	assert.True(t, ch.Outputs[1].FailoverActive)
	assert.True(t, ch.Outputs[0].Enabled, "flags only when not live")
	assert.False(t, ch.Outputs[1].Enabled)
	assert.Zero(t, f.client.count("AddProcessOutput"))

	// already active
	require.NoError(t, f.m.TriggerFailover(ctx, id, 0))

	require.NoError(t, f.m.RestorePrimary(ctx, id, 0))
	ch = f.get(t, id)
	assert.False(t, ch.Outputs[0].FailoverActive)
	assert.False(t, ch.Outputs[1].FailoverActive)
	assert.Zero(t, ch.Outputs[0].ConsecutiveFailures)

	// nothing to restore
	require.NoError(t, f.m.RestorePrimary(ctx, id, 0))
}

func TestTriggerFailoverActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 2)
	require.NoError(t, f.m.SetBackup(ctx, id, 0, 1))
	require.NoError(t, f.m.Start(ctx, id))
	ch := f.get(t, id)
	primary, backup := ch.Outputs[0].RemoteID(), ch.Outputs[1].RemoteID()
	require.Equal(t, []string{primary}, f.client.outputIDs(id))

	require.NoError(t, f.m.TriggerFailover(ctx, id, 0))
	ch = f.get(t, id)
	assert.False(t, ch.Outputs[0].Enabled)
	assert.True(t, ch.Outputs[1].Enabled)
	assert.True(t, ch.Outputs[0].FailoverActive)
	assert.Equal(t, f.clock.Now(), ch.Outputs[0].FailoverStart)
	assert.Equal(t, []string{backup}, f.client.outputIDs(id))
	assert.Contains(t, f.pub.types(), events.TypeFailover)

	require.NoError(t, f.m.RestorePrimary(ctx, id, 0))
	ch = f.get(t, id)
	assert.True(t, ch.Outputs[0].Enabled)
	assert.False(t, ch.Outputs[1].Enabled)
	assert.False(t, ch.Outputs[0].FailoverActive)
	assert.Equal(t, []string{primary}, f.client.outputIDs(id))
	assert.Contains(t, f.pub.types(), events.TypeRestore)
}

func TestTriggerFailoverAttachFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 2)
	require.NoError(t, f.m.SetBackup(ctx, id, 0, 1))
	require.NoError(t, f.m.Start(ctx, id))
	primary := f.get(t, id).Outputs[0].RemoteID()

	f.client.failOn("AddProcessOutput", 1)
	require.ErrorIs(t, f.m.TriggerFailover(ctx, id, 0), errRemote)

	ch := f.get(t, id)
	assert.False(t, ch.Outputs[0].FailoverActive, "flags untouched on failure")
	assert.True(t, ch.Outputs[0].Enabled)
	assert.False(t, ch.Outputs[1].Enabled)
	assert.Equal(t, []string{primary}, f.client.outputIDs(id), "primary re-attached")
}

func TestCheckFailover(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 2)
	require.NoError(t, f.m.SetHealthMonitoring(ctx, id, true))
	require.NoError(t, f.m.SetBackup(ctx, id, 0, 1))

	// not active: nothing happens
	require.NoError(t, f.m.CheckFailover(ctx, id))

	require.NoError(t, f.m.Start(ctx, id))
	e, err := f.m.entry(id)
	require.NoError(t, err)

	// simulate three failed checks on the primary
	cur := e.snapshot()
	for i := 0; i < 3; i++ {
		cur.RecordHealth(0, false, f.clock.Now())
	}
	e.mu.Lock()
	e.ch = cur
	e.mu.Unlock()

	require.NoError(t, f.m.CheckFailover(ctx, id))
	ch := f.get(t, id)
	assert.True(t, ch.Outputs[0].FailoverActive)
	assert.True(t, ch.Outputs[1].Enabled)

	// the primary recovers
	cur = e.snapshot()
	cur.RecordHealth(0, true, f.clock.Now())
	e.mu.Lock()
	e.ch = cur
	e.mu.Unlock()

	require.NoError(t, f.m.CheckFailover(ctx, id))
	ch = f.get(t, id)
	assert.False(t, ch.Outputs[0].FailoverActive)
	assert.True(t, ch.Outputs[0].Enabled)
	assert.False(t, ch.Outputs[1].Enabled)
}
