package channel

import (
	"errors"
	"time"
)

// NoIndex marks an unset backup/primary linkage.
const NoIndex = -1

// Defaults applied to new channels and when health monitoring is first enabled.
const (
	DefaultInputURL             = "rtmp://localhost/live/obs_input"
	DefaultReconnectDelay       = 5
	DefaultHealthInterval       = 30
	DefaultFailureThreshold     = 3
	DefaultMaxReconnectAttempts = 5
)

var (
	ErrInvalidIndex     = errors.New("invalid output index")
	ErrEmptyBatch       = errors.New("empty index set")
	ErrNilEncoding      = errors.New("encoding required")
	ErrEmptyStreamKey   = errors.New("stream key required")
	ErrEmptyName        = errors.New("channel name required")
	ErrSelfBackup       = errors.New("output cannot back up itself")
	ErrBackupOutput     = errors.New("output is a backup")
	ErrChainedBackup    = errors.New("backup outputs cannot have a backup")
	ErrNoBackup         = errors.New("output has no backup")
	ErrNoEnabledOutputs = errors.New("no enabled outputs configured")
	ErrNoInputURL       = errors.New("no input URL configured")
)

// Encoding holds per-output encoding settings. Zero values mean "use the source".
type Encoding struct {
	Width        uint32 `json:"width"`
	Height       uint32 `json:"height"`
	Bitrate      uint32 `json:"bitrate"`       // kbps
	FPSNum       uint32 `json:"fps_num"`       //
	FPSDen       uint32 `json:"fps_den"`       //
	AudioBitrate uint32 `json:"audio_bitrate"` // kbps
	AudioTrack   uint32 `json:"audio_track"`   // 1-6, 0 = default
	MaxBandwidth uint32 `json:"max_bandwidth"` // kbps, 0 = unlimited
	LowLatency   bool   `json:"low_latency"`
}

// DefaultEncoding returns the encoding used when none is supplied.
func DefaultEncoding() Encoding { return Encoding{} }

// Output is one streaming destination of a channel.
type Output struct {
	ID                string      `json:"id"` // internal key naming the output inside the remote process
	Service           Service     `json:"service"`
	StreamKey         string      `json:"stream_key"`
	CustomURL         string      `json:"custom_url,omitempty"`
	TargetOrientation Orientation `json:"target_orientation"`
	Encoding          Encoding    `json:"encoding"`
	Enabled           bool        `json:"enabled"`

	// runtime
	Connected           bool      `json:"connected"`
	BytesSent           uint64    `json:"bytes_sent"`
	CurrentBitrate      uint32    `json:"current_bitrate"`
	DroppedFrames       uint32    `json:"dropped_frames"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	LastHealthCheck     time.Time `json:"last_health_check"`
	AutoReconnect       bool      `json:"auto_reconnect"`

	// backup linkage
	IsBackup       bool      `json:"is_backup"`
	PrimaryIndex   int       `json:"primary_index"`
	BackupIndex    int       `json:"backup_index"`
	FailoverActive bool      `json:"failover_active"`
	FailoverStart  time.Time `json:"failover_start"`
}

// HasBackup reports whether the output is a primary with a linked backup.
func (o *Output) HasBackup() bool { return o.BackupIndex != NoIndex }

// URL is the full publish URL (ingest base + stream key).
func (o *Output) URL() string {
	if o.Service == ServiceCustom {
		if o.CustomURL == "" {
			return o.StreamKey
		}
		if o.StreamKey == "" {
			return o.CustomURL
		}
		return o.CustomURL + "/" + o.StreamKey
	}
	return o.Service.IngestURL(o.TargetOrientation) + "/" + o.StreamKey
}

// RemoteID names the output inside the remote process.
// It is derived from the output key rather than the position so that
// index shifts never rename outputs of a running process.
func (o *Output) RemoteID() string {
	key := o.ID
	if len(key) > 8 {
		key = key[:8]
	}
	return o.Service.Slug() + "_" + key
}

// resetRuntime clears connection statistics.
func (o *Output) resetRuntime() {
	o.Connected = false
	o.BytesSent = 0
	o.CurrentBitrate = 0
	o.DroppedFrames = 0
	o.ConsecutiveFailures = 0
	o.LastHealthCheck = time.Time{}
}

// Channel groups outputs that share one input source and one lifecycle.
type Channel struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	CreatedAt             time.Time   `json:"created_at"`
	InputURL              string      `json:"input_url"`
	SourceOrientation     Orientation `json:"source_orientation"`
	AutoDetectOrientation bool        `json:"auto_detect_orientation"`
	SourceWidth           uint32      `json:"source_width"`
	SourceHeight          uint32      `json:"source_height"`
	AutoStart             bool        `json:"auto_start"`
	AutoReconnect         bool        `json:"auto_reconnect"`
	ReconnectDelay        uint32      `json:"reconnect_delay_sec"`

	HealthMonitoring     bool   `json:"health_monitoring_enabled"`
	HealthInterval       uint32 `json:"health_check_interval_sec"`
	FailureThreshold     uint32 `json:"failure_threshold"`
	MaxReconnectAttempts uint32 `json:"max_reconnect_attempts"`

	PreviewEnabled  bool      `json:"preview_mode_enabled"`
	PreviewDuration uint32    `json:"preview_duration_sec"`
	PreviewStart    time.Time `json:"preview_start_time"`

	Status     Status `json:"status"`
	ProcessRef string `json:"process_reference"`
	LastError  string `json:"last_error"`

	Outputs []Output `json:"outputs"`
}

// New returns an inactive channel with no outputs and the stock settings.
func New(id, name string) *Channel {
	return &Channel{
		ID:                    id,
		Name:                  name,
		InputURL:              DefaultInputURL,
		AutoDetectOrientation: true,
		AutoReconnect:         true,
		ReconnectDelay:        DefaultReconnectDelay,
		Status:                StatusInactive,
		Outputs:               []Output{},
	}
}

// IsLive reports whether the channel currently owns a remote process.
func (ch *Channel) IsLive() bool { return ch.ProcessRef != "" }

// EnabledCount returns the number of enabled outputs.
func (ch *Channel) EnabledCount() int {
	n := 0
	for i := range ch.Outputs {
		if ch.Outputs[i].Enabled {
			n++
		}
	}
	return n
}

// StartPrecondition checks what must hold before a remote process is created.
func (ch *Channel) StartPrecondition() error {
	if ch.EnabledCount() == 0 {
		return ErrNoEnabledOutputs
	}
	if ch.InputURL == "" {
		return ErrNoInputURL
	}
	return nil
}

// EffectiveOrientation is the source orientation, detected from the source
// dimensions when auto-detection is on.
func (ch *Channel) EffectiveOrientation() Orientation {
	if ch.AutoDetectOrientation {
		if o := DetectOrientation(ch.SourceWidth, ch.SourceHeight); o != OrientationAuto {
			return o
		}
	}
	return ch.SourceOrientation
}

// Fail moves the channel to ERROR and records the message.
func (ch *Channel) Fail(msg string) {
	ch.Status = StatusError
	ch.LastError = msg
}

// ClearPreview resets every preview field.
func (ch *Channel) ClearPreview() {
	ch.PreviewEnabled = false
	ch.PreviewDuration = 0
	ch.PreviewStart = time.Time{}
}

// Disconnect marks every output as not connected.
func (ch *Channel) Disconnect() {
	for i := range ch.Outputs {
		ch.Outputs[i].Connected = false
	}
}

func (ch *Channel) validIndex(i int) bool { return i >= 0 && i < len(ch.Outputs) }
