package engine

import (
	"errors"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/restreamer"
)

var (
	ErrChannelNotFound    = errors.New("channel not found")
	ErrTemplateNotFound   = errors.New("template not found")
	ErrTemplateExists     = errors.New("template already exists")
	ErrInvalidState       = errors.New("operation not valid in current channel state")
	ErrNotActive          = errors.New("channel is not active")
	ErrNoProcess          = errors.New("channel has no process reference")
	ErrNoClient           = errors.New("no process client configured")
	ErrChannelLive        = errors.New("channel is live; stop it first")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrProcessNotRunning  = errors.New("process is not running")
	ErrClosed             = errors.New("manager closed")
)

// Re-exported so callers of the engine need not import the domain or client packages for errors.Is.
var (
	ErrInvalidIndex     = channel.ErrInvalidIndex
	ErrEmptyBatch       = channel.ErrEmptyBatch
	ErrNilEncoding      = channel.ErrNilEncoding
	ErrNoBackup         = channel.ErrNoBackup
	ErrBackupOutput     = channel.ErrBackupOutput
	ErrNoEnabledOutputs = channel.ErrNoEnabledOutputs
	ErrNoInputURL       = channel.ErrNoInputURL
	ErrBuiltinTemplate  = channel.ErrBuiltinTemplate
	ErrProcessNotFound  = restreamer.ErrProcessNotFound
)
