package handler

import (
	"net/http"

	"github.com/edirooss/zmux-restream/internal/engine"
	mw "github.com/edirooss/zmux-restream/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Register mounts every /api route on r.
func Register(r gin.IRouter, log *zap.Logger, m *engine.Manager, summary *engine.Summary) {
	api := r.Group("/api")
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	chs := NewChannelsHandler(log, m, summary)
	requireValidID := mw.RequireValidChannelID()
	requireValidIndex := mw.RequireValidOutputIndex()

	// --- Channel collection ---
	api.GET("/channels", chs.GetChannelList)
	api.POST("/channels", chs.CreateChannel)
	api.GET("/channels/summary", chs.Summary)
	api.POST("/channels/start-all", chs.StartAll)
	api.POST("/channels/stop-all", chs.StopAll)

	// --- Channel resource ---
	ch := api.Group("/channels/:id", requireValidID)
	{
		ch.GET("", chs.GetChannel)
		ch.PATCH("", chs.ModifyChannel)
		ch.DELETE("", chs.DeleteChannel)
		ch.POST("/duplicate", chs.DuplicateChannel)

		ch.POST("/start", chs.Start)
		ch.POST("/stop", chs.Stop)
		ch.POST("/restart", chs.Restart)

		ch.POST("/preview", chs.StartPreview)
		ch.POST("/preview/live", chs.PreviewToLive)
		ch.POST("/preview/cancel", chs.CancelPreview)

		ch.POST("/health", chs.SetHealthMonitoring)
		ch.POST("/health/check", chs.CheckHealth)
		ch.GET("/stats", chs.GetStats)
		ch.GET("/events", chs.GetEvents)

		ch.POST("/templates/:template_id", chs.ApplyTemplate)

		// --- Outputs ---
		ch.POST("/outputs", chs.AddOutput)
		ch.POST("/outputs/bulk/:action", chs.BulkOutputs)

		out := ch.Group("/outputs/:index", requireValidIndex)
		out.DELETE("", chs.RemoveOutput)
		out.POST("/enable", chs.EnableOutput)
		out.POST("/disable", chs.DisableOutput)
		out.PUT("/encoding", chs.UpdateOutputEncoding)
		out.POST("/backup", chs.SetBackup)
		out.DELETE("/backup", chs.RemoveBackup)
		out.POST("/failover", chs.TriggerFailover)
		out.POST("/restore", chs.RestorePrimary)
		out.POST("/reconnect", chs.ReconnectOutput)
	}

	// --- Templates ---
	tmpls := NewTemplatesHandler(m)
	api.GET("/templates", tmpls.GetTemplateList)
	api.POST("/templates", tmpls.CreateTemplate)
	api.GET("/templates/:id", tmpls.GetTemplate)
	api.DELETE("/templates/:id", tmpls.DeleteTemplate)

	// --- Process service ---
	rs := NewRestreamerHandler(log, m)
	api.GET("/restreamer/status", rs.Status)
	api.POST("/restreamer/login", rs.Login)
	api.POST("/restreamer/refresh", rs.Refresh)
}
