package engine

import (
	"context"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
)

// Store persists channel and template records. Implementations must be safe
// for concurrent use.
type Store interface {
	SaveChannel(ctx context.Context, r channel.Record) error
	DeleteChannel(ctx context.Context, id string) error
	// LoadChannels returns every record ordered by creation time.
	LoadChannels(ctx context.Context) ([]channel.Record, error)

	SaveTemplate(ctx context.Context, t channel.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	LoadTemplates(ctx context.Context) ([]channel.Template, error)
}

// nopStore keeps nothing; used when no store is configured.
type nopStore struct{}

func (nopStore) SaveChannel(context.Context, channel.Record) error         { return nil }
func (nopStore) DeleteChannel(context.Context, string) error               { return nil }
func (nopStore) LoadChannels(context.Context) ([]channel.Record, error)    { return nil, nil }
func (nopStore) SaveTemplate(context.Context, channel.Template) error      { return nil }
func (nopStore) DeleteTemplate(context.Context, string) error              { return nil }
func (nopStore) LoadTemplates(context.Context) ([]channel.Template, error) { return nil, nil }
