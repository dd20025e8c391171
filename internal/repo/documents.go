package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound means neither the document nor its index entry existed.
var ErrNotFound = errors.New("record not found")

// documents is a keyspace of JSON documents stored at <prefix><id>, indexed
// by a SET of ids.
type documents struct {
	client   *RedisClient
	log      *zap.Logger
	prefix   string
	indexKey string
}

func (d *documents) key(id string) string { return d.prefix + id }

func (d *documents) keys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.key(id)
	}
	return keys
}

// upsert persists a document and adds its id to the index set.
func (d *documents) upsert(ctx context.Context, id string, payload []byte) error {
	pipe := d.client.TxPipeline()
	pipe.Set(ctx, d.key(id), payload, 0)
	pipe.SAdd(ctx, d.indexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// delete removes a document and its index entry.
// Returns ErrNotFound if neither was present.
// Logs a warning if the document and index set are inconsistent.
func (d *documents) delete(ctx context.Context, id string) error {
	key := d.key(id)

	pipe := d.client.TxPipeline()
	delRes := pipe.Del(ctx, key)
	sremRes := pipe.SRem(ctx, d.indexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	delCount := delRes.Val()
	sremCount := sremRes.Val()

	if delCount == 0 && sremCount == 0 {
		return ErrNotFound
	}

	if delCount != sremCount {
		d.log.Warn(
			"delete mismatch",
			zap.String("key", key),
			zap.String("id", id),
			zap.Int64("del_count", delCount),
			zap.Int64("srem_count", sremCount),
		)
	}
	return nil
}

// all returns the raw payload of every indexed document.
//
// Not strongly consistent: SMEMBERS and MGET are separate calls, so a
// concurrent delete can leave an id with no value. Those are skipped with a
// warning.
func (d *documents) all(ctx context.Context) ([]string, error) {
	ids, err := d.client.SMembers(ctx, d.indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := d.keys(ids)
	vals, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}
	return d.parseMGetResult(keys, vals)
}

// parseMGetResult keeps the string payloads of an MGET reply.
func (d *documents) parseMGetResult(keys []string, vals []any) ([]string, error) {
	out := make([]string, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			d.log.Warn("document missing during MGET", zap.String("key", keys[i]), zap.Int("index", i))
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("key %s at index %d: unexpected type (got %T, want string)", keys[i], i, v)
		}
		out = append(out, s)
	}
	return out, nil
}
