package handler

import (
	"context"
	"net/http"

	"github.com/edirooss/zmux-restream/internal/engine"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RestreamerHandler exposes the connection to the process service.
type RestreamerHandler struct {
	log *zap.Logger
	m   *engine.Manager
}

func NewRestreamerHandler(log *zap.Logger, m *engine.Manager) *RestreamerHandler {
	return &RestreamerHandler{log: log.Named("restreamer"), m: m}
}

type restreamerStatus struct {
	Configured bool   `json:"configured"`
	Connected  bool   `json:"connected"`
	LastError  string `json:"last_error,omitempty"`
	Active     int    `json:"active_channels"`
}

// Status handles GET /restreamer/status.
func (h *RestreamerHandler) Status(c *gin.Context) {
	out := restreamerStatus{Active: h.m.ActiveCount()}
	if client := h.m.Client(); client != nil {
		out.Configured = true
		out.Connected = client.IsConnected()
		out.LastError = client.LastError()
	}
	c.JSON(http.StatusOK, out)
}

// Login handles POST /restreamer/login: forces a fresh login, then checks
// the connection.
func (h *RestreamerHandler) Login(c *gin.Context) {
	h.call(c, func(ctx context.Context) error {
		client := h.m.Client()
		if err := client.ForceLogin(ctx); err != nil {
			return err
		}
		return client.TestConnection(ctx)
	})
}

// Refresh handles POST /restreamer/refresh.
func (h *RestreamerHandler) Refresh(c *gin.Context) {
	h.call(c, func(ctx context.Context) error { return h.m.Client().RefreshToken(ctx) })
}

func (h *RestreamerHandler) call(c *gin.Context, fn func(ctx context.Context) error) {
	if h.m.Client() == nil {
		fail(c, engine.ErrNoClient)
		return
	}
	if err := fn(c.Request.Context()); err != nil {
		h.log.Warn("process service call failed", zap.String("route", c.FullPath()), zap.Error(err))
		fail(c, err)
		return
	}
	h.Status(c)
}
