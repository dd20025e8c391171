package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"go.uber.org/zap"
)

const (
	channelKeyPrefix = "zmux-restream:channel:"
	channelIDsKey    = "zmux-restream:channels" // SET of channel ids
)

// ChannelRepository persists channel records as JSON documents.
type ChannelRepository struct {
	docs documents
}

func newChannelRepository(log *zap.Logger, client *RedisClient) *ChannelRepository {
	return &ChannelRepository{documents{
		client:   client,
		log:      log.Named("channels"),
		prefix:   channelKeyPrefix,
		indexKey: channelIDsKey,
	}}
}

// Upsert persists a record and indexes its id.
func (r *ChannelRepository) Upsert(ctx context.Context, rec channel.Record) error {
	if rec.ID == "" {
		return errors.New("channel record without id")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return r.docs.upsert(ctx, rec.ID, payload)
}

// Delete removes a record. Returns ErrNotFound if it was never stored.
func (r *ChannelRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// GetAll returns every stored record, oldest first.
func (r *ChannelRepository) GetAll(ctx context.Context) ([]channel.Record, error) {
	raw, err := r.docs.all(ctx)
	if err != nil {
		return nil, err
	}
	return decodeChannels(raw)
}

func decodeChannels(raw []string) ([]channel.Record, error) {
	out := make([]channel.Record, 0, len(raw))
	for i, s := range raw {
		var rec channel.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("record %d: decode channel: %w", i, err)
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
