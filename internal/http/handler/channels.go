package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/domain/channel/views"
	"github.com/edirooss/zmux-restream/internal/engine"
	"github.com/edirooss/zmux-restream/internal/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultEventLines is how many events GET /channels/{id}/events returns
// without ?lines.
const DefaultEventLines = 100

// ChannelsHandler provides RESTful HTTP handlers for Channel resources.
//
// Supported operations:
//   - GET    /channels       → List all channels
//   - POST   /channels       → Create a new channel
//   - GET    /channels/{id}  → Retrieve a channel by ID
//   - PATCH  /channels/{id}  → Modify an existing channel (partial update)
//   - DELETE /channels/{id}  → Remove a channel (stopping it first)
//
// plus the lifecycle actions (start, stop, restart, preview, health) as
// POST sub-resources. Channels are always rendered with masked stream keys.
type ChannelsHandler struct {
	log     *zap.Logger
	m       *engine.Manager
	summary *engine.Summary
}

// NewChannelsHandler constructs a ChannelsHandler instance.
func NewChannelsHandler(log *zap.Logger, m *engine.Manager, summary *engine.Summary) *ChannelsHandler {
	return &ChannelsHandler{
		log:     log.Named("channels"),
		m:       m,
		summary: summary,
	}
}

func toViews(chs []channel.Channel) []*views.Channel {
	out := make([]*views.Channel, len(chs))
	for i := range chs {
		out[i] = chs[i].AsView()
	}
	return out
}

// GetChannelList handles GET /channels.
//
// Status Codes:
//   - 200 OK → JSON array of channels; `X-Total-Count` header
func (h *ChannelsHandler) GetChannelList(c *gin.Context) {
	chs := h.m.List()
	c.Header("X-Total-Count", strconv.Itoa(len(chs)))
	c.JSON(http.StatusOK, toViews(chs))
}

// CreateChannel handles POST /channels.
//
// Behavior:
//   - Requires a name; every other setting is optional.
//   - Responds with resource location in `Location` header.
//
// Status Codes:
//   - 201 Created → JSON of created channel
//   - 400 Bad Request → Invalid JSON or schema
//   - 422 Unprocessable Entity → Validation failed
func (h *ChannelsHandler) CreateChannel(c *gin.Context) {
	var req dto.ChannelSettings
	if !bind(c, &req) {
		return
	}
	if err := req.CheckNulls(); err != nil {
		badRequest(c, err)
		return
	}
	name := ""
	req.Name.Apply(&name)

	// validate the whole request before anything is created
	draft := channel.New("draft", name)
	req.MergePatch(draft)
	if err := draft.Validate(); err != nil {
		fail(c, err)
		return
	}

	ch, err := h.m.CreateChannel(c.Request.Context(), name)
	if err != nil {
		fail(c, err)
		return
	}
	if !req.Empty() {
		if err := h.m.UpdateChannel(c.Request.Context(), ch.ID, func(cur *channel.Channel) error {
			req.MergePatch(cur)
			return nil
		}); err != nil {
			fail(c, err)
			return
		}
		if ch, err = h.m.Get(ch.ID); err != nil {
			fail(c, err)
			return
		}
	}

	c.Header("Location", fmt.Sprintf("/api/channels/%s", ch.ID))
	c.JSON(http.StatusCreated, ch.AsView())
}

// GetChannel handles GET /channels/{id}.
//
// Status Codes:
//   - 200 OK → JSON of channel
//   - 404 Not Found → Channel not found
func (h *ChannelsHandler) GetChannel(c *gin.Context) {
	ch, err := h.m.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch.AsView())
}

// ModifyChannel handles PATCH /channels/{id}.
//
// Status Codes:
//   - 200 OK → JSON of updated channel
//   - 400 Bad Request → Invalid JSON, schema or null on a non-nullable key
//   - 404 Not Found → Channel not found
//   - 409 Conflict → Channel is live
//   - 422 Unprocessable Entity → Validation failed
func (h *ChannelsHandler) ModifyChannel(c *gin.Context) {
	id := c.Param("id")

	var req dto.ChannelSettings
	if !bind(c, &req) {
		return
	}
	if err := req.CheckNulls(); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.m.UpdateChannel(c.Request.Context(), id, func(ch *channel.Channel) error {
		req.MergePatch(ch)
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	h.respondChannel(c, id)
}

// DeleteChannel handles DELETE /channels/{id}.
//
// Status Codes:
//   - 204 No Content
//   - 404 Not Found → Channel not found
func (h *ChannelsHandler) DeleteChannel(c *gin.Context) {
	if err := h.m.DeleteChannel(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DuplicateChannel handles POST /channels/{id}/duplicate.
func (h *ChannelsHandler) DuplicateChannel(c *gin.Context) {
	var req dto.Duplicate
	if !bind(c, &req) {
		return
	}
	ch, err := h.m.DuplicateChannel(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/channels/%s", ch.ID))
	c.JSON(http.StatusCreated, ch.AsView())
}

// respondChannel writes the current view of channel id.
func (h *ChannelsHandler) respondChannel(c *gin.Context, id string) {
	ch, err := h.m.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch.AsView())
}

// run executes a channel operation and answers with the channel after it.
func (h *ChannelsHandler) run(c *gin.Context, op func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := op(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	h.summary.Invalidate()
	h.respondChannel(c, id)
}

// Start handles POST /channels/{id}/start.
func (h *ChannelsHandler) Start(c *gin.Context) { h.run(c, h.m.Start) }

// Stop handles POST /channels/{id}/stop.
func (h *ChannelsHandler) Stop(c *gin.Context) { h.run(c, h.m.Stop) }

// Restart handles POST /channels/{id}/restart.
func (h *ChannelsHandler) Restart(c *gin.Context) { h.run(c, h.m.Restart) }

// StartPreview handles POST /channels/{id}/preview with an optional
// {"duration_sec": N}; without a body the channel's preview duration is used.
func (h *ChannelsHandler) StartPreview(c *gin.Context) {
	ch, err := h.m.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	req := dto.Preview{DurationSec: ch.PreviewDuration}
	if !bindOptional(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, id string) error {
		return h.m.StartPreview(ctx, id, req.DurationSec)
	})
}

// PreviewToLive handles POST /channels/{id}/preview/live.
func (h *ChannelsHandler) PreviewToLive(c *gin.Context) { h.run(c, h.m.PreviewToLive) }

// CancelPreview handles POST /channels/{id}/preview/cancel.
func (h *ChannelsHandler) CancelPreview(c *gin.Context) { h.run(c, h.m.CancelPreview) }

// SetHealthMonitoring handles POST /channels/{id}/health {"enabled": bool}.
func (h *ChannelsHandler) SetHealthMonitoring(c *gin.Context) {
	var req dto.Toggle
	if !bind(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	h.run(c, func(ctx context.Context, id string) error {
		return h.m.SetHealthMonitoring(ctx, id, *req.Enabled)
	})
}

// CheckHealth handles POST /channels/{id}/health/check: one health pass,
// then a statistics refresh.
func (h *ChannelsHandler) CheckHealth(c *gin.Context) {
	h.run(c, func(ctx context.Context, id string) error {
		if err := h.m.CheckHealth(ctx, id); err != nil {
			return err
		}
		return h.m.UpdateStats(ctx, id)
	})
}

// GetStats handles GET /channels/{id}/stats.
func (h *ChannelsHandler) GetStats(c *gin.Context) {
	st, err := h.m.Stats(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetEvents handles GET /channels/{id}/events?lines=N (newest first).
func (h *ChannelsHandler) GetEvents(c *gin.Context) {
	n := DefaultEventLines
	if s := c.Query("lines"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			badRequest(c, fmt.Errorf("invalid lines %q", s))
			return
		}
		n = v
	}
	evs, err := h.m.Events(c.Param("id"), n)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(len(evs)))
	c.JSON(http.StatusOK, evs)
}

// StartAll handles POST /channels/start-all. Per-channel failures are
// reported in the message; channels that started stay started.
func (h *ChannelsHandler) StartAll(c *gin.Context) {
	err := h.m.StartAll(c.Request.Context())
	h.summary.Invalidate()
	h.bulkResult(c, err)
}

// StopAll handles POST /channels/stop-all.
func (h *ChannelsHandler) StopAll(c *gin.Context) {
	err := h.m.StopAll(c.Request.Context())
	h.summary.Invalidate()
	h.bulkResult(c, err)
}

func (h *ChannelsHandler) bulkResult(c *gin.Context, err error) {
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusMultiStatus, gin.H{"message": err.Error(), "active": h.m.ActiveCount()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": h.m.ActiveCount()})
}

// Summary handles GET /channels/summary: a short-lived cached snapshot of
// every channel merged with its process runtime. ?force=1 bypasses the cache.
func (h *ChannelsHandler) Summary(c *gin.Context) {
	if c.Query("force") == "1" {
		h.summary.Invalidate()
	}

	res, err := h.summary.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	// Friendly cache headers for debugging/observability
	c.Header("X-Cache", map[bool]string{true: "HIT", false: "MISS"}[res.CacheHit])
	c.Header("X-Summary-Generated-At", strconv.FormatInt(res.GeneratedAt.UnixMilli(), 10))
	c.Header("X-Total-Count", strconv.Itoa(len(res.Data)))
	c.Header("X-Active-Count", strconv.Itoa(res.Active))

	c.JSON(http.StatusOK, res.Data)
}
