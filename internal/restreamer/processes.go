package restreamer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

func processPath(id string, rest ...string) string {
	p := "/api/v3/process/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// GetProcesses lists every process and refreshes the reference cache.
func (c *HTTPClient) GetProcesses(ctx context.Context) ([]Process, error) {
	var procs []Process
	if err := c.call(ctx, http.MethodGet, "/api/v3/process", nil, &procs); err != nil {
		return nil, err
	}
	for i := range procs {
		c.rememberProcess(procs[i].Reference, procs[i].ID)
	}
	return procs, nil
}

// GetProcess returns one process by id.
func (c *HTTPClient) GetProcess(ctx context.Context, id string) (*Process, error) {
	if id == "" {
		return nil, ErrProcessNotFound
	}
	var p Process
	if err := c.call(ctx, http.MethodGet, processPath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type stateResponse struct {
	Order    string `json:"order"`
	Running  bool   `json:"running"`
	Progress struct {
		Frames        uint64  `json:"frames"`
		DroppedFrames uint64  `json:"dropped_frames"`
		Bitrate       uint32  `json:"bitrate"`
		FPS           float64 `json:"fps"`
		SizeKB        uint64  `json:"size_kb"`
		Packets       uint64  `json:"packets"`
	} `json:"progress"`
}

// GetProcessState returns the progress counters of a process.
func (c *HTTPClient) GetProcessState(ctx context.Context, id string) (*ProcessState, error) {
	var r stateResponse
	if err := c.call(ctx, http.MethodGet, processPath(id, "state"), nil, &r); err != nil {
		return nil, err
	}
	return &ProcessState{
		Order:         r.Order,
		Running:       r.Running,
		Frames:        r.Progress.Frames,
		DroppedFrames: r.Progress.DroppedFrames,
		Bitrate:       r.Progress.Bitrate,
		FPS:           r.Progress.FPS,
		BytesWritten:  r.Progress.SizeKB * 1024,
		PacketsSent:   r.Progress.Packets,
	}, nil
}

type createProcessRequest struct {
	Reference string          `json:"reference"`
	Command   string          `json:"command"`
	Autostart bool            `json:"autostart"`
	Outputs   []ProcessOutput `json:"outputs,omitempty"`
}

// CreateProcess creates and autostarts a process for spec.
// The command carries stream keys and is only ever logged redacted.
func (c *HTTPClient) CreateProcess(ctx context.Context, spec ProcessSpec) error {
	if spec.Reference == "" {
		return c.fail(errors.New("create process: reference required"))
	}
	cmd, err := spec.Command()
	if err != nil {
		return c.fail(fmt.Errorf("create process: %w", err))
	}

	req := createProcessRequest{
		Reference: spec.Reference,
		Command:   cmd.String(),
		Autostart: true,
		Outputs:   spec.Outputs,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v3/process", req, &resp); err != nil {
		return err
	}

	c.ids.Delete(spec.Reference)
	c.rememberProcess(spec.Reference, resp.ID)
	c.log.Debug("process created",
		zap.String("reference", spec.Reference),
		zap.String("process_id", resp.ID),
		zap.String("command", cmd.Redacted()))
	return nil
}

type commandRequest struct {
	Command string `json:"command"`
}

func (c *HTTPClient) command(ctx context.Context, id, cmd string) error {
	return c.call(ctx, http.MethodPost, processPath(id, "command"), commandRequest{Command: cmd}, nil)
}

func (c *HTTPClient) StartProcess(ctx context.Context, id string) error {
	return c.command(ctx, id, "start")
}

func (c *HTTPClient) StopProcess(ctx context.Context, id string) error {
	return c.command(ctx, id, "stop")
}

func (c *HTTPClient) RestartProcess(ctx context.Context, id string) error {
	return c.command(ctx, id, "restart")
}

// DeleteProcess removes a process and forgets its reference.
func (c *HTTPClient) DeleteProcess(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, processPath(id), nil, nil); err != nil {
		return err
	}
	c.forgetProcess(id)
	return nil
}

// GetProcessConfig returns the raw JSON configuration of a process.
func (c *HTTPClient) GetProcessConfig(ctx context.Context, id string) (string, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, processPath(id, "config"), nil, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
