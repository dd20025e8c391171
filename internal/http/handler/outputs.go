package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/http/dto"
	mw "github.com/edirooss/zmux-restream/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

// Output routes live on ChannelsHandler: every one of them answers with the
// owning channel.

// AddOutput handles POST /channels/{id}/outputs.
//
// Status Codes:
//   - 201 Created → JSON of the channel; `Location` names the new output
//   - 422 Unprocessable Entity → unknown service, missing key, bad encoding
func (h *ChannelsHandler) AddOutput(c *gin.Context) {
	id := c.Param("id")

	var req dto.OutputCreate
	if !bind(c, &req) {
		return
	}
	index, err := h.m.AddOutput(c.Request.Context(), id, req.ToSpec())
	if err != nil {
		fail(c, err)
		return
	}
	ch, err := h.m.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/channels/%s/outputs/%d", id, index))
	c.JSON(http.StatusCreated, ch.AsView())
}

// runOutput is run for routes carrying a validated :index.
func (h *ChannelsHandler) runOutput(c *gin.Context, op func(ctx context.Context, id string, index int) error) {
	index := mw.OutputIndex(c)
	h.run(c, func(ctx context.Context, id string) error {
		return op(ctx, id, index)
	})
}

// RemoveOutput handles DELETE /channels/{id}/outputs/{index}. A live output
// is detached from the process first.
func (h *ChannelsHandler) RemoveOutput(c *gin.Context) { h.runOutput(c, h.m.RemoveOutput) }

// EnableOutput handles POST /channels/{id}/outputs/{index}/enable.
func (h *ChannelsHandler) EnableOutput(c *gin.Context) {
	h.runOutput(c, func(ctx context.Context, id string, index int) error {
		return h.m.SetOutputEnabled(ctx, id, index, true)
	})
}

// DisableOutput handles POST /channels/{id}/outputs/{index}/disable.
func (h *ChannelsHandler) DisableOutput(c *gin.Context) {
	h.runOutput(c, func(ctx context.Context, id string, index int) error {
		return h.m.SetOutputEnabled(ctx, id, index, false)
	})
}

// UpdateOutputEncoding handles PUT /channels/{id}/outputs/{index}/encoding.
// With ?live=true the encoding is pushed to the running process.
func (h *ChannelsHandler) UpdateOutputEncoding(c *gin.Context) {
	live, _ := strconv.ParseBool(c.DefaultQuery("live", "false"))

	var enc channel.Encoding
	if !bind(c, &enc) {
		return
	}
	h.runOutput(c, func(ctx context.Context, id string, index int) error {
		if live {
			return h.m.UpdateOutputEncodingLive(ctx, id, index, &enc)
		}
		return h.m.UpdateOutputEncoding(ctx, id, index, &enc)
	})
}

// SetBackup handles POST /channels/{id}/outputs/{index}/backup {"backup_index": N}.
func (h *ChannelsHandler) SetBackup(c *gin.Context) {
	var req dto.Backup
	if !bind(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	h.runOutput(c, func(ctx context.Context, id string, index int) error {
		return h.m.SetBackup(ctx, id, index, *req.BackupIndex)
	})
}

// RemoveBackup handles DELETE /channels/{id}/outputs/{index}/backup.
func (h *ChannelsHandler) RemoveBackup(c *gin.Context) { h.runOutput(c, h.m.RemoveBackup) }

// TriggerFailover handles POST /channels/{id}/outputs/{index}/failover.
func (h *ChannelsHandler) TriggerFailover(c *gin.Context) { h.runOutput(c, h.m.TriggerFailover) }

// RestorePrimary handles POST /channels/{id}/outputs/{index}/restore.
func (h *ChannelsHandler) RestorePrimary(c *gin.Context) { h.runOutput(c, h.m.RestorePrimary) }

// ReconnectOutput handles POST /channels/{id}/outputs/{index}/reconnect.
func (h *ChannelsHandler) ReconnectOutput(c *gin.Context) { h.runOutput(c, h.m.ReconnectOutput) }

// BulkOutputs handles POST /channels/{id}/outputs/bulk/{action} with
// {"indices": [...]}; action is enable, disable, start, stop, delete or
// encoding (which also reads "encoding").
func (h *ChannelsHandler) BulkOutputs(c *gin.Context) {
	var req dto.Bulk
	if !bind(c, &req) {
		return
	}

	var op func(ctx context.Context, id string) error
	switch action := c.Param("action"); action {
	case "enable":
		op = func(ctx context.Context, id string) error { return h.m.BulkSetEnabled(ctx, id, req.Indices, true) }
	case "disable":
		op = func(ctx context.Context, id string) error { return h.m.BulkSetEnabled(ctx, id, req.Indices, false) }
	case "start":
		op = func(ctx context.Context, id string) error { return h.m.BulkStartOutputs(ctx, id, req.Indices) }
	case "stop":
		op = func(ctx context.Context, id string) error { return h.m.BulkStopOutputs(ctx, id, req.Indices) }
	case "delete":
		op = func(ctx context.Context, id string) error { return h.m.BulkDeleteOutputs(ctx, id, req.Indices) }
	case "encoding":
		op = func(ctx context.Context, id string) error {
			return h.m.BulkUpdateEncoding(ctx, id, req.Indices, req.Encoding)
		}
	default:
		c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("unknown bulk action %q", action)})
		return
	}
	h.run(c, op)
}

// ApplyTemplate handles POST /channels/{id}/templates/{template_id} {"stream_key": "..."}.
func (h *ChannelsHandler) ApplyTemplate(c *gin.Context) {
	id := c.Param("id")

	var req dto.ApplyTemplate
	if !bind(c, &req) {
		return
	}
	index, err := h.m.ApplyTemplate(c.Request.Context(), id, c.Param("template_id"), req.StreamKey)
	if err != nil {
		fail(c, err)
		return
	}
	ch, err := h.m.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/channels/%s/outputs/%d", id, index))
	c.JSON(http.StatusCreated, ch.AsView())
}
