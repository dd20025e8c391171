package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
)

func TestStartStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 3)
	require.NoError(t, f.m.SetOutputEnabled(ctx, id, 2, false))

	require.NoError(t, f.m.Start(ctx, id))
	ch := f.get(t, id)
	assert.Equal(t, channel.StatusActive, ch.Status)
	assert.Equal(t, id, ch.ProcessRef)
	assert.Empty(t, ch.LastError)
	assert.True(t, ch.Outputs[0].Connected)
	assert.True(t, ch.Outputs[1].Connected)
	assert.False(t, ch.Outputs[2].Connected, "disabled output is not attached")
	assert.ElementsMatch(t, remoteIDs(ch.Outputs[:2]), f.client.outputIDs(id))
	assert.Equal(t, 1, f.m.ActiveCount())

	// start on ACTIVE is a no-op
	require.NoError(t, f.m.Start(ctx, id))
	assert.Equal(t, 1, f.client.count("CreateProcess"))

	require.NoError(t, f.m.Stop(ctx, id))
	ch = f.get(t, id)
	assert.Equal(t, channel.StatusInactive, ch.Status)
	assert.Empty(t, ch.ProcessRef)
	for i := range ch.Outputs {
		assert.False(t, ch.Outputs[i].Connected)
	}
	assert.Equal(t, 1, f.client.count("finished"), "process stopped")
	assert.Equal(t, 0, f.client.processCount(), "process deleted")

	// stop on INACTIVE is a no-op
	require.NoError(t, f.m.Stop(ctx, id))
	assert.Equal(t, 1, f.client.count("DeleteProcess"))

	statuses := []string{}
	evs, err := f.m.Events(id, 0)
	require.NoError(t, err)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == events.TypeStatus {
			statuses = append(statuses, evs[i].Status)
		}
	}
	assert.Equal(t, []string{"STARTING", "ACTIVE", "STOPPING", "INACTIVE"}, statuses)
}

func remoteIDs(outs []channel.Output) []string {
	ids := make([]string, len(outs))
	for i := range outs {
		ids[i] = outs[i].RemoteID()
	}
	return ids
}

func TestStartPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture, id string)
		wantErr error
		wantMsg string
	}{
		{
			name: "no enabled outputs",
			setup: func(t *testing.T, f *fixture, id string) {
				require.NoError(t, f.m.SetOutputEnabled(context.Background(), id, 0, false))
			},
			wantErr: channel.ErrNoEnabledOutputs,
			wantMsg: "No enabled outputs configured",
		},
		{
			name: "no input url",
			setup: func(t *testing.T, f *fixture, id string) {
				require.NoError(t, f.m.UpdateChannel(context.Background(), id, func(ch *channel.Channel) error {
					ch.InputURL = ""
					return nil
				}))
			},
			wantErr: channel.ErrNoInputURL,
			wantMsg: "No input URL configured",
		},
		{
			name:    "no client",
			setup:   func(t *testing.T, f *fixture, id string) { f.m.SetClient(nil) },
			wantErr: ErrNoClient,
			wantMsg: "No process client configured",
		},
		{
			name:    "remote failure",
			setup:   func(t *testing.T, f *fixture, id string) { f.client.failOn("CreateProcess", 1) },
			wantErr: errRemote,
			wantMsg: "CreateProcess: remote failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			id := f.channelWithOutputs(t, 1)
			tt.setup(t, f, id)

			err := f.m.Start(context.Background(), id)
			require.ErrorIs(t, err, tt.wantErr)

			ch := f.get(t, id)
			assert.Equal(t, channel.StatusError, ch.Status)
			assert.Equal(t, tt.wantMsg, ch.LastError)
			assert.Empty(t, ch.ProcessRef)
		})
	}
}

func TestStartFromErrorRetries(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 1)
	f.client.failOn("CreateProcess", 1)

	require.Error(t, f.m.Start(ctx, id))
	require.Equal(t, channel.StatusError, f.get(t, id).Status)

	require.NoError(t, f.m.Start(ctx, id))
	ch := f.get(t, id)
	assert.Equal(t, channel.StatusActive, ch.Status)
	assert.Empty(t, ch.LastError)
}

func TestStopIgnoresRemoteFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 1)
	require.NoError(t, f.m.Start(ctx, id))

	f.client.failOn("finished", 1)
	f.client.failOn("DeleteProcess", 1)
	require.NoError(t, f.m.Stop(ctx, id))
	assert.Equal(t, channel.StatusInactive, f.get(t, id).Status)
}

func TestRestart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 1)
	require.NoError(t, f.m.Start(ctx, id))

	require.NoError(t, f.m.Restart(ctx, id))
	assert.Equal(t, channel.StatusActive, f.get(t, id).Status)
	assert.Equal(t, 2, f.client.count("CreateProcess"))
	assert.Equal(t, 1, f.client.processCount())
}

func TestPreview(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 1)

	require.NoError(t, f.m.StartPreview(ctx, id, 30))
	ch := f.get(t, id)
	assert.Equal(t, channel.StatusPreview, ch.Status)
	assert.True(t, ch.PreviewEnabled)
	assert.Equal(t, uint32(30), ch.PreviewDuration)
	assert.Equal(t, 0, f.client.processCount(), "preview has no remote process")

	assert.ErrorIs(t, f.m.StartPreview(ctx, id, 30), ErrInvalidState)
	assert.ErrorIs(t, f.m.Start(ctx, id), ErrInvalidState)

	timedOut, err := f.m.PreviewTimedOut(id)
	require.NoError(t, err)
	assert.False(t, timedOut)

	f.clock.Advance(30 * time.Second)
	timedOut, err = f.m.PreviewTimedOut(id)
	require.NoError(t, err)
	assert.True(t, timedOut)

	require.NoError(t, f.m.CancelPreview(ctx, id))
	ch = f.get(t, id)
	assert.Equal(t, channel.StatusInactive, ch.Status)
	assert.False(t, ch.PreviewEnabled)
	assert.True(t, ch.PreviewStart.IsZero())

	assert.ErrorIs(t, f.m.CancelPreview(ctx, id), ErrInvalidState)
	assert.ErrorIs(t, f.m.PreviewToLive(ctx, id), ErrInvalidState)
}

func TestPreviewToLive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 2)
	require.NoError(t, f.m.StartPreview(ctx, id, 0))

	f.client.failOn("CreateProcess", 1)
	require.ErrorIs(t, f.m.PreviewToLive(ctx, id), errRemote)
	ch := f.get(t, id)
	assert.Equal(t, channel.StatusPreview, ch.Status)
	assert.NotEmpty(t, ch.LastError)

	require.NoError(t, f.m.PreviewToLive(ctx, id))
	ch = f.get(t, id)
	assert.Equal(t, channel.StatusActive, ch.Status)
	assert.Equal(t, id, ch.ProcessRef)
	assert.False(t, ch.PreviewEnabled)
	assert.Empty(t, ch.LastError)
	assert.Len(t, f.client.outputIDs(id), 2)
}

func TestPreviewToLiveWithoutClient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := f.channelWithOutputs(t, 1)
	f.m.SetClient(nil)

	require.NoError(t, f.m.StartPreview(ctx, id, 10))
	require.NoError(t, f.m.PreviewToLive(ctx, id))
	ch := f.get(t, id)
	assert.Equal(t, channel.StatusActive, ch.Status)
	assert.Empty(t, ch.ProcessRef)

	// nothing to tear down
	require.NoError(t, f.m.Stop(ctx, id))
	assert.Equal(t, channel.StatusInactive, f.get(t, id).Status)
}

func TestProcessSpecVideoFilter(t *testing.T) {
	t.Parallel()
	ch := channel.New("ch-1", "vertical")
	ch.AutoDetectOrientation = false
	ch.SourceOrientation = channel.OrientationHorizontal
	_, err := ch.AddOutput(channel.OutputSpec{ID: "a1", Service: channel.ServiceTikTok, StreamKey: "k1", Orientation: channel.OrientationVertical})
	require.NoError(t, err)

	spec := processSpec(ch)
	assert.Equal(t, "ch-1", spec.Reference)
	assert.Equal(t, "crop=ih*9/16:ih,scale=1080:1920", spec.VideoFilter)
	require.Len(t, spec.Outputs, 1)
	assert.Equal(t, "rtmp://live.tiktok.com/live/k1", spec.Outputs[0].URL)

	_, err = ch.AddOutput(channel.OutputSpec{ID: "b2", Service: channel.ServiceYouTube, StreamKey: "k2", Orientation: channel.OrientationHorizontal})
	require.NoError(t, err)
	spec = processSpec(ch)
	assert.Empty(t, spec.VideoFilter, "mixed filters are not applied process-wide")
	assert.Len(t, spec.Outputs, 2)
}
