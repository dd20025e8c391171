// Package repo keeps channel and template records in Redis.
package repo

import (
	"context"
	"errors"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"go.uber.org/zap"
)

// Repository groups the Redis-backed repositories. It satisfies the engine's
// Store contract.
type Repository struct {
	log    *zap.Logger
	client *RedisClient

	Channels  *ChannelRepository
	Templates *TemplateRepository
}

func NewRepository(log *zap.Logger, client *RedisClient) *Repository {
	log = log.Named("repo")
	return &Repository{
		log:       log,
		client:    client,
		Channels:  newChannelRepository(log, client),
		Templates: newTemplateRepository(log, client),
	}
}

func (r *Repository) SaveChannel(ctx context.Context, rec channel.Record) error {
	return r.Channels.Upsert(ctx, rec)
}

// DeleteChannel is idempotent: a record that was never stored is not an error.
func (r *Repository) DeleteChannel(ctx context.Context, id string) error {
	if err := r.Channels.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (r *Repository) LoadChannels(ctx context.Context) ([]channel.Record, error) {
	return r.Channels.GetAll(ctx)
}

func (r *Repository) SaveTemplate(ctx context.Context, t channel.Template) error {
	return r.Templates.Upsert(ctx, t)
}

func (r *Repository) DeleteTemplate(ctx context.Context, id string) error {
	if err := r.Templates.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (r *Repository) LoadTemplates(ctx context.Context) ([]channel.Template, error) {
	return r.Templates.GetAll(ctx)
}

// Close releases the Redis connection pool.
func (r *Repository) Close() error {
	return r.client.Close()
}
