package views

import "time"

// Channel is the API representation of a channel. Stream keys are masked.
type Channel struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	CreatedAt             time.Time `json:"created_at"`
	InputURL              string    `json:"input_url"`
	SourceOrientation     string    `json:"source_orientation"`
	AutoDetectOrientation bool      `json:"auto_detect_orientation"`
	SourceWidth           uint32    `json:"source_width"`
	SourceHeight          uint32    `json:"source_height"`
	AutoStart             bool      `json:"auto_start"`
	AutoReconnect         bool      `json:"auto_reconnect"`
	ReconnectDelay        uint32    `json:"reconnect_delay_sec"`
	Health                Health    `json:"health"`
	Preview               *Preview  `json:"preview"` // null unless in preview
	Status                string    `json:"status"`
	ProcessRef            string    `json:"process_reference"`
	LastError             string    `json:"last_error"`
	Outputs               []Output  `json:"outputs"`
}

type Health struct {
	Enabled              bool   `json:"enabled"`
	IntervalSec          uint32 `json:"interval_sec"`
	FailureThreshold     uint32 `json:"failure_threshold"`
	MaxReconnectAttempts uint32 `json:"max_reconnect_attempts"`
}

type Preview struct {
	DurationSec uint32    `json:"duration_sec"`
	StartedAt   time.Time `json:"started_at"`
}

type Output struct {
	Index               int      `json:"index"`
	Service             string   `json:"service"`
	ServiceName         string   `json:"service_name"`
	StreamKey           string   `json:"stream_key"`
	CustomURL           string   `json:"custom_url,omitempty"`
	TargetOrientation   string   `json:"target_orientation"`
	Encoding            Encoding `json:"encoding"`
	Enabled             bool     `json:"enabled"`
	Connected           bool     `json:"connected"`
	BytesSent           uint64   `json:"bytes_sent"`
	ConsecutiveFailures uint32   `json:"consecutive_failures"`
	AutoReconnect       bool     `json:"auto_reconnect"`
	IsBackup            bool     `json:"is_backup"`
	PrimaryIndex        *int     `json:"primary_index"` // nullable
	BackupIndex         *int     `json:"backup_index"`  // nullable
	FailoverActive      bool     `json:"failover_active"`
}

// Encoding mirrors channel.Encoding field for field.
type Encoding struct {
	Width        uint32 `json:"width"`
	Height       uint32 `json:"height"`
	Bitrate      uint32 `json:"bitrate"`
	FPSNum       uint32 `json:"fps_num"`
	FPSDen       uint32 `json:"fps_den"`
	AudioBitrate uint32 `json:"audio_bitrate"`
	AudioTrack   uint32 `json:"audio_track"`
	MaxBandwidth uint32 `json:"max_bandwidth"`
	LowLatency   bool   `json:"low_latency"`
}
