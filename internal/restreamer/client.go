// Package restreamer talks to the remote process-execution service (datarhei
// Restreamer, API v3). A process runs one FFmpeg command fanning a channel's
// input out to its destinations; its reference is the channel id.
package restreamer

import (
	"context"
	"errors"
	"fmt"

	"github.com/edirooss/zmux-restream/pkg/teecmd"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrLoginThrottled  = errors.New("login throttled")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNoCredentials   = errors.New("username and password required for login")
	ErrNoRefreshToken  = errors.New("no refresh token")
	// ErrRemote wraps every non-2xx answer of the process service.
	ErrRemote = errors.New("process service error")
)

// StateRunning is the process state reported for a live FFmpeg.
const StateRunning = "running"

// Process is a remote process as listed by the service.
type Process struct {
	ID        string  `json:"id"`
	Reference string  `json:"reference"`
	State     string  `json:"state"` // running, finished, failed, ...
	Uptime    uint64  `json:"uptime"`
	CPUUsage  float64 `json:"cpu_usage"`
	Memory    uint64  `json:"memory"`
	Command   string  `json:"command"`
}

// Running reports whether the process state is "running".
func (p *Process) Running() bool { return p.State == StateRunning }

// ProcessState is the detailed progress of a process.
type ProcessState struct {
	Order         string
	Running       bool
	Frames        uint64
	DroppedFrames uint64
	Bitrate       uint32 // kbps
	FPS           float64
	BytesWritten  uint64
	PacketsSent   uint64
}

// ProcessOutput is one destination inside a process.
type ProcessOutput struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	VideoFilter string `json:"video_filter,omitempty"`
}

// ProcessSpec describes a process to create.
type ProcessSpec struct {
	Reference   string
	InputURL    string
	VideoFilter string
	Outputs     []ProcessOutput
}

// Command builds the FFmpeg tee command for the spec.
func (s ProcessSpec) Command() (*teecmd.Builder, error) {
	b := teecmd.NewBuilder(s.InputURL).WithVideoFilter(s.VideoFilter)
	for _, o := range s.Outputs {
		b.WithOutput(o.URL)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodingParams updates the encoding of a running output. Zero or empty fields are left unchanged.
type EncodingParams struct {
	VideoBitrateKbps uint32
	AudioBitrateKbps uint32
	Width            uint32
	Height           uint32
	FPSNum           uint32
	FPSDen           uint32
	Preset           string
	Profile          string
}

// Client is the process-execution backend the engine drives.
type Client interface {
	TestConnection(ctx context.Context) error
	IsConnected() bool
	LastError() string

	GetProcesses(ctx context.Context) ([]Process, error)
	GetProcess(ctx context.Context, id string) (*Process, error)
	GetProcessState(ctx context.Context, id string) (*ProcessState, error)
	CreateProcess(ctx context.Context, spec ProcessSpec) error
	StartProcess(ctx context.Context, id string) error
	StopProcess(ctx context.Context, id string) error
	RestartProcess(ctx context.Context, id string) error
	DeleteProcess(ctx context.Context, id string) error
	GetProcessConfig(ctx context.Context, id string) (string, error)

	RefreshToken(ctx context.Context) error
	ForceLogin(ctx context.Context) error

	GetProcessOutputs(ctx context.Context, processID string) ([]string, error)
	AddProcessOutput(ctx context.Context, processID string, out ProcessOutput) error
	RemoveProcessOutput(ctx context.Context, processID, outputID string) error
	UpdateOutputEncoding(ctx context.Context, processID, outputID string, p EncodingParams) error
}

// idResolver is implemented by clients that remember reference -> id mappings.
type idResolver interface {
	cachedProcessID(ref string) (string, bool)
}

// FindByReference returns the process whose reference is ref.
func FindByReference(ctx context.Context, c Client, ref string) (*Process, error) {
	if r, ok := c.(idResolver); ok {
		if id, hit := r.cachedProcessID(ref); hit {
			p, err := c.GetProcess(ctx, id)
			if err == nil && p.Reference == ref {
				return p, nil
			}
			if err != nil && !errors.Is(err, ErrProcessNotFound) {
				return nil, err
			}
		}
	}

	procs, err := c.GetProcesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	for i := range procs {
		if procs[i].Reference == ref {
			return &procs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: reference %q", ErrProcessNotFound, ref)
}
