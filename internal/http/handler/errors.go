package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/engine"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"github.com/edirooss/zmux-restream/pkg/jsonx"
	"github.com/gin-gonic/gin"
)

// statusOf maps an engine error to its HTTP status.
//
//   - 404 → unknown channel, template or process
//   - 422 → settings or index sets that fail validation
//   - 409 → operation not valid in the current state
//   - 423 → another operation holds the channel (fail-fast mode)
//   - 502 → the process service failed
//   - 503 → no process service configured / shutting down
func statusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrChannelNotFound),
		errors.Is(err, engine.ErrTemplateNotFound),
		errors.Is(err, engine.ErrProcessNotFound):
		return http.StatusNotFound

	case errors.Is(err, channel.ErrInvalid),
		errors.Is(err, engine.ErrInvalidIndex),
		errors.Is(err, engine.ErrEmptyBatch),
		errors.Is(err, engine.ErrNilEncoding),
		errors.Is(err, channel.ErrSelfBackup),
		errors.Is(err, channel.ErrChainedBackup),
		errors.Is(err, engine.ErrNoEnabledOutputs),
		errors.Is(err, engine.ErrNoInputURL):
		return http.StatusUnprocessableEntity

	case errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrNotActive),
		errors.Is(err, engine.ErrNoProcess),
		errors.Is(err, engine.ErrChannelLive),
		errors.Is(err, engine.ErrTemplateExists),
		errors.Is(err, engine.ErrBuiltinTemplate),
		errors.Is(err, engine.ErrNoBackup),
		errors.Is(err, engine.ErrBackupOutput):
		return http.StatusConflict

	case errors.Is(err, engine.ErrLocked):
		return http.StatusLocked

	case errors.Is(err, engine.ErrNoClient),
		errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable

	case errors.Is(err, restreamer.ErrLoginThrottled):
		return http.StatusTooManyRequests

	case errors.Is(err, engine.ErrReconnectExhausted),
		errors.Is(err, engine.ErrProcessNotRunning),
		errors.Is(err, restreamer.ErrRemote),
		errors.Is(err, restreamer.ErrUnauthorized),
		errors.Is(err, restreamer.ErrNoCredentials),
		errors.Is(err, restreamer.ErrNoRefreshToken):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail records err on the context and writes {"message": ...}.
func fail(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusOf(err), gin.H{"message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
}

// bind strictly decodes the JSON body into dst; it answers 400 on failure.
func bind[T any](c *gin.Context, dst *T) bool {
	if err := jsonx.ParseStrictJSONBody(c.Request, dst); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

// bindOptional is bind for bodies that may be omitted.
func bindOptional[T any](c *gin.Context, dst *T) bool {
	if err := jsonx.ParseOptionalJSONBody(c.Request, dst); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}
