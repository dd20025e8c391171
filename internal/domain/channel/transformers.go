package channel

import (
	"time"

	"github.com/edirooss/zmux-restream/internal/domain/channel/views"
)

// Clone returns a deep copy of the channel; the outputs slice is reallocated.
func (ch *Channel) Clone() Channel {
	c := *ch
	if ch.Outputs != nil {
		c.Outputs = make([]Output, len(ch.Outputs))
		copy(c.Outputs, ch.Outputs)
	}
	return c
}

// Duplicate copies every output (encoding and backup linkage included) into a
// new inactive channel with the given identity. Runtime state is not carried over.
func (ch *Channel) Duplicate(id, name string) *Channel {
	c := ch.Clone()
	c.ID = id
	c.Name = name
	c.Status = StatusInactive
	c.ProcessRef = ""
	c.LastError = ""
	c.ClearPreview()
	for i := range c.Outputs {
		c.Outputs[i].resetRuntime()
		c.Outputs[i].FailoverActive = false
		c.Outputs[i].FailoverStart = time.Time{}
	}
	return &c
}

// AsView returns the API representation with stream keys masked.
func (ch *Channel) AsView() *views.Channel {
	v := &views.Channel{
		ID:                    ch.ID,
		Name:                  ch.Name,
		CreatedAt:             ch.CreatedAt,
		InputURL:              ch.InputURL,
		SourceOrientation:     ch.SourceOrientation.String(),
		AutoDetectOrientation: ch.AutoDetectOrientation,
		SourceWidth:           ch.SourceWidth,
		SourceHeight:          ch.SourceHeight,
		AutoStart:             ch.AutoStart,
		AutoReconnect:         ch.AutoReconnect,
		ReconnectDelay:        ch.ReconnectDelay,
		Health: views.Health{
			Enabled:              ch.HealthMonitoring,
			IntervalSec:          ch.HealthInterval,
			FailureThreshold:     ch.FailureThreshold,
			MaxReconnectAttempts: ch.MaxReconnectAttempts,
		},
		Status:     ch.Status.String(),
		ProcessRef: ch.ProcessRef,
		LastError:  ch.LastError,
		Outputs:    make([]views.Output, len(ch.Outputs)),
	}
	if ch.PreviewEnabled {
		v.Preview = &views.Preview{
			DurationSec: ch.PreviewDuration,
			StartedAt:   ch.PreviewStart,
		}
	}

	for i := range ch.Outputs {
		o := &ch.Outputs[i]
		ov := views.Output{
			Index:               i,
			Service:             o.Service.Slug(),
			ServiceName:         o.Service.Name(),
			StreamKey:           maskKey(o.StreamKey),
			CustomURL:           o.CustomURL,
			TargetOrientation:   o.TargetOrientation.String(),
			Encoding:            views.Encoding(o.Encoding),
			Enabled:             o.Enabled,
			Connected:           o.Connected,
			BytesSent:           o.BytesSent,
			ConsecutiveFailures: o.ConsecutiveFailures,
			AutoReconnect:       o.AutoReconnect,
			IsBackup:            o.IsBackup,
			FailoverActive:      o.FailoverActive,
		}
		if o.IsBackup {
			p := o.PrimaryIndex
			ov.PrimaryIndex = &p
		}
		if o.HasBackup() {
			b := o.BackupIndex
			ov.BackupIndex = &b
		}
		v.Outputs[i] = ov
	}
	return v
}

// maskKey keeps the last four characters of a stream key.
func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return "****" + k[len(k)-4:]
}
