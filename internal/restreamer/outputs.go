package restreamer

import (
	"context"
	"errors"
	"net/http"
)

// GetProcessOutputs lists the output ids of a running process.
func (c *HTTPClient) GetProcessOutputs(ctx context.Context, processID string) ([]string, error) {
	var resp struct {
		Outputs []struct {
			ID string `json:"id"`
		} `json:"outputs"`
	}
	if err := c.call(ctx, http.MethodGet, processPath(processID, "outputs"), nil, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Outputs))
	for _, o := range resp.Outputs {
		if o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

// AddProcessOutput attaches a destination to a running process.
func (c *HTTPClient) AddProcessOutput(ctx context.Context, processID string, out ProcessOutput) error {
	if out.ID == "" || out.URL == "" {
		return c.fail(errors.New("add output: id and url required"))
	}
	return c.call(ctx, http.MethodPost, processPath(processID, "outputs"), out, nil)
}

// RemoveProcessOutput detaches a destination from a running process.
func (c *HTTPClient) RemoveProcessOutput(ctx context.Context, processID, outputID string) error {
	return c.call(ctx, http.MethodDelete, processPath(processID, "outputs", outputID), nil, nil)
}

type resolution struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

type frameRate struct {
	Num uint32 `json:"num"`
	Den uint32 `json:"den"`
}

type encodingRequest struct {
	VideoBitrate uint32      `json:"video_bitrate,omitempty"` // bps
	AudioBitrate uint32      `json:"audio_bitrate,omitempty"` // bps
	Resolution   *resolution `json:"resolution,omitempty"`
	FPS          *frameRate  `json:"fps,omitempty"`
	Preset       string      `json:"preset,omitempty"`
	Profile      string      `json:"profile,omitempty"`
}

func newEncodingRequest(p EncodingParams) encodingRequest {
	r := encodingRequest{
		VideoBitrate: p.VideoBitrateKbps * 1000,
		AudioBitrate: p.AudioBitrateKbps * 1000,
		Preset:       p.Preset,
		Profile:      p.Profile,
	}
	if p.Width > 0 && p.Height > 0 {
		r.Resolution = &resolution{Width: p.Width, Height: p.Height}
	}
	if p.FPSNum > 0 && p.FPSDen > 0 {
		r.FPS = &frameRate{Num: p.FPSNum, Den: p.FPSDen}
	}
	return r
}

// UpdateOutputEncoding changes the encoding of one output of a running process.
func (c *HTTPClient) UpdateOutputEncoding(ctx context.Context, processID, outputID string, p EncodingParams) error {
	return c.call(ctx, http.MethodPut, processPath(processID, "outputs", outputID, "encoding"), newEncodingRequest(p), nil)
}
