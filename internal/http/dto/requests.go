package dto

import (
	"errors"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
)

// OutputCreate is the body of POST /api/channels/{id}/outputs.
type OutputCreate struct {
	Service           channel.Service     `json:"service"`
	StreamKey         string              `json:"stream_key"`
	CustomURL         string              `json:"custom_url"`
	TargetOrientation channel.Orientation `json:"target_orientation"`
	Encoding          *channel.Encoding   `json:"encoding"` // null = source settings
}

func (req *OutputCreate) ToSpec() channel.OutputSpec {
	return channel.OutputSpec{
		Service:     req.Service,
		StreamKey:   req.StreamKey,
		CustomURL:   req.CustomURL,
		Orientation: req.TargetOrientation,
		Encoding:    req.Encoding,
	}
}

// Duplicate is the body of POST /api/channels/{id}/duplicate.
type Duplicate struct {
	Name string `json:"name"`
}

// Preview is the body of POST /api/channels/{id}/preview; 0 means no timeout.
type Preview struct {
	DurationSec uint32 `json:"duration_sec"`
}

// Toggle is the body of endpoints switching a feature on or off.
type Toggle struct {
	Enabled *bool `json:"enabled"`
}

func (req *Toggle) Validate() error {
	if req.Enabled == nil {
		return errors.New("enabled is required")
	}
	return nil
}

// Backup is the body of POST /api/channels/{id}/outputs/{index}/backup.
type Backup struct {
	BackupIndex *int `json:"backup_index"`
}

func (req *Backup) Validate() error {
	if req.BackupIndex == nil {
		return errors.New("backup_index is required")
	}
	return nil
}

// Bulk is the body of POST /api/channels/{id}/outputs/bulk/{action}.
// Encoding is only read by the encoding action.
type Bulk struct {
	Indices  []int             `json:"indices"`
	Encoding *channel.Encoding `json:"encoding"`
}

// ApplyTemplate is the body of POST /api/channels/{id}/templates/{template_id}.
type ApplyTemplate struct {
	StreamKey string `json:"stream_key"`
}

// TemplateCreate is the body of POST /api/templates.
type TemplateCreate struct {
	ID          string              `json:"id"` // optional; generated when empty
	Name        string              `json:"name"`
	Service     channel.Service     `json:"service"`
	Orientation channel.Orientation `json:"orientation"`
	Encoding    channel.Encoding    `json:"encoding"`
}

func (req *TemplateCreate) ToTemplate() channel.Template {
	return channel.Template{
		ID:          req.ID,
		Name:        req.Name,
		Service:     req.Service,
		Orientation: req.Orientation,
		Encoding:    req.Encoding,
	}
}
