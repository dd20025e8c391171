package channel

import (
	"fmt"
	"time"
)

// Record is the persisted shape of a channel: every configured attribute and
// the backup linkage, no connection statistics. Status is not stored; a
// restored channel always comes back INACTIVE.
type Record struct {
	ID                    string         `json:"id"`
	Name                  string         `json:"name"`
	CreatedAt             time.Time      `json:"created_at"`
	SourceOrientation     Orientation    `json:"source_orientation"`
	AutoDetectOrientation bool           `json:"auto_detect_orientation"`
	SourceWidth           uint32         `json:"source_width"`
	SourceHeight          uint32         `json:"source_height"`
	InputURL              string         `json:"input_url"`
	AutoStart             bool           `json:"auto_start"`
	AutoReconnect         bool           `json:"auto_reconnect"`
	ReconnectDelay        uint32         `json:"reconnect_delay_sec"`
	HealthMonitoring      bool           `json:"health_monitoring_enabled"`
	HealthInterval        uint32         `json:"health_check_interval_sec"`
	FailureThreshold      uint32         `json:"failure_threshold"`
	MaxReconnectAttempts  uint32         `json:"max_reconnect_attempts"`
	PreviewDuration       uint32         `json:"preview_duration_sec"`
	Outputs               []OutputRecord `json:"outputs"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// OutputRecord is the persisted shape of an output.
type OutputRecord struct {
	ID                string      `json:"id"`
	Service           Service     `json:"service"`
	StreamKey         string      `json:"stream_key"`
	CustomURL         string      `json:"custom_url,omitempty"`
	TargetOrientation Orientation `json:"target_orientation"`
	Enabled           bool        `json:"enabled"`
	Width             uint32      `json:"width"`
	Height            uint32      `json:"height"`
	Bitrate           uint32      `json:"bitrate"`
	FPSNum            uint32      `json:"fps_num"`
	FPSDen            uint32      `json:"fps_den"`
	AudioBitrate      uint32      `json:"audio_bitrate"`
	AudioTrack        uint32      `json:"audio_track"`
	MaxBandwidth      uint32      `json:"max_bandwidth"`
	LowLatency        bool        `json:"low_latency"`
	AutoReconnect     bool        `json:"auto_reconnect"`
	IsBackup          bool        `json:"is_backup"`
	PrimaryIndex      int         `json:"primary_index"`
	BackupIndex       int         `json:"backup_index"`
}

// ToRecord snapshots the channel for persistence.
func (ch *Channel) ToRecord(now time.Time) Record {
	r := Record{
		ID:                    ch.ID,
		Name:                  ch.Name,
		CreatedAt:             ch.CreatedAt,
		SourceOrientation:     ch.SourceOrientation,
		AutoDetectOrientation: ch.AutoDetectOrientation,
		SourceWidth:           ch.SourceWidth,
		SourceHeight:          ch.SourceHeight,
		InputURL:              ch.InputURL,
		AutoStart:             ch.AutoStart,
		AutoReconnect:         ch.AutoReconnect,
		ReconnectDelay:        ch.ReconnectDelay,
		HealthMonitoring:      ch.HealthMonitoring,
		HealthInterval:        ch.HealthInterval,
		FailureThreshold:      ch.FailureThreshold,
		MaxReconnectAttempts:  ch.MaxReconnectAttempts,
		PreviewDuration:       ch.PreviewDuration,
		Outputs:               make([]OutputRecord, len(ch.Outputs)),
		UpdatedAt:             now,
	}
	for i, o := range ch.Outputs {
		r.Outputs[i] = OutputRecord{
			ID:                o.ID,
			Service:           o.Service,
			StreamKey:         o.StreamKey,
			CustomURL:         o.CustomURL,
			TargetOrientation: o.TargetOrientation,
			Enabled:           o.Enabled,
			Width:             o.Encoding.Width,
			Height:            o.Encoding.Height,
			Bitrate:           o.Encoding.Bitrate,
			FPSNum:            o.Encoding.FPSNum,
			FPSDen:            o.Encoding.FPSDen,
			AudioBitrate:      o.Encoding.AudioBitrate,
			AudioTrack:        o.Encoding.AudioTrack,
			MaxBandwidth:      o.Encoding.MaxBandwidth,
			LowLatency:        o.Encoding.LowLatency,
			AutoReconnect:     o.AutoReconnect,
			IsBackup:          o.IsBackup,
			PrimaryIndex:      o.PrimaryIndex,
			BackupIndex:       o.BackupIndex,
		}
	}
	return r
}

// FromRecord rebuilds an INACTIVE channel from its persisted record.
// Backup links that point outside the output list are rejected.
func FromRecord(r Record) (*Channel, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("record: missing id")
	}

	ch := New(r.ID, r.Name)
	ch.CreatedAt = r.CreatedAt
	ch.SourceOrientation = r.SourceOrientation
	ch.AutoDetectOrientation = r.AutoDetectOrientation
	ch.SourceWidth = r.SourceWidth
	ch.SourceHeight = r.SourceHeight
	ch.InputURL = r.InputURL
	ch.AutoStart = r.AutoStart
	ch.AutoReconnect = r.AutoReconnect
	ch.ReconnectDelay = r.ReconnectDelay
	ch.HealthMonitoring = r.HealthMonitoring
	ch.HealthInterval = r.HealthInterval
	ch.FailureThreshold = r.FailureThreshold
	ch.MaxReconnectAttempts = r.MaxReconnectAttempts
	ch.PreviewDuration = r.PreviewDuration

	n := len(r.Outputs)
	ch.Outputs = make([]Output, n)
	for i, o := range r.Outputs {
		if o.IsBackup && (o.PrimaryIndex < 0 || o.PrimaryIndex >= n) {
			return nil, fmt.Errorf("record %s: output %d: primary index %d out of range", r.ID, i, o.PrimaryIndex)
		}
		if o.BackupIndex != NoIndex && (o.BackupIndex < 0 || o.BackupIndex >= n) {
			return nil, fmt.Errorf("record %s: output %d: backup index %d out of range", r.ID, i, o.BackupIndex)
		}
		primary := o.PrimaryIndex
		if !o.IsBackup {
			primary = NoIndex
		}
		ch.Outputs[i] = Output{
			ID:                o.ID,
			Service:           o.Service,
			StreamKey:         o.StreamKey,
			CustomURL:         o.CustomURL,
			TargetOrientation: o.TargetOrientation,
			Enabled:           o.Enabled,
			Encoding: Encoding{
				Width:        o.Width,
				Height:       o.Height,
				Bitrate:      o.Bitrate,
				FPSNum:       o.FPSNum,
				FPSDen:       o.FPSDen,
				AudioBitrate: o.AudioBitrate,
				AudioTrack:   o.AudioTrack,
				MaxBandwidth: o.MaxBandwidth,
				LowLatency:   o.LowLatency,
			},
			AutoReconnect: o.AutoReconnect,
			IsBackup:      o.IsBackup,
			PrimaryIndex:  primary,
			BackupIndex:   o.BackupIndex,
		}
	}
	return ch, nil
}
