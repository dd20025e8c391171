package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSummaryCachesSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	live := f.channelWithOutputs(t, 1)
	idle := f.channelWithOutputs(t, 1)
	require.NoError(t, f.m.Start(ctx, live))

	s := NewSummary(zap.NewNop(), f.m, SummaryOptions{TTL: time.Minute})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	res, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1, res.Active)
	require.Len(t, res.Data, 2)
	assert.Equal(t, live, res.Data[0].ID)
	require.NotNil(t, res.Data[0].Process)
	assert.Equal(t, "proc-1", res.Data[0].Process.ID)
	assert.Equal(t, "running", res.Data[0].Process.State)
	assert.Equal(t, idle, res.Data[1].ID)
	assert.Nil(t, res.Data[1].Process)
	assert.Equal(t, "****ey_0", res.Data[0].Outputs[0].StreamKey, "stream keys are masked")
	listed := f.client.count("GetProcesses")

	res, err = s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, listed, f.client.count("GetProcesses"))

	s.Invalidate()
	res, err = s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
}

func TestSummaryStaleOnError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	live := f.channelWithOutputs(t, 1)
	require.NoError(t, f.m.Start(ctx, live))

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	strict := NewSummary(zap.NewNop(), f.m, SummaryOptions{})
	strict.now = func() time.Time { return now }

	f.client.failOn("GetProcesses", -1)
	_, err := strict.Get(ctx)
	require.ErrorIs(t, err, errRemote)

	lenient := NewSummary(zap.NewNop(), f.m, SummaryOptions{AllowStaleOnError: true})
	res, err := lenient.Get(ctx)
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Nil(t, res.Data[0].Process, "runtime unknown while the service is down")
	assert.Equal(t, 1, res.Active)
}

func TestSummaryEmpty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := NewSummary(zap.NewNop(), f.m, SummaryOptions{})

	res, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.Zero(t, f.client.count("GetProcesses"), "no live channels, no listing")
}
