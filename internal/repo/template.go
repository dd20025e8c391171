package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"go.uber.org/zap"
)

const (
	templateKeyPrefix = "zmux-restream:template:"
	templateIDsKey    = "zmux-restream:templates"
)

// TemplateRepository persists user-defined output templates.
type TemplateRepository struct {
	docs documents
}

func newTemplateRepository(log *zap.Logger, client *RedisClient) *TemplateRepository {
	return &TemplateRepository{documents{
		client:   client,
		log:      log.Named("templates"),
		prefix:   templateKeyPrefix,
		indexKey: templateIDsKey,
	}}
}

func (r *TemplateRepository) Upsert(ctx context.Context, t channel.Template) error {
	if channel.IsBuiltinID(t.ID) {
		return channel.ErrBuiltinTemplate
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return r.docs.upsert(ctx, t.ID, payload)
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// GetAll returns every stored template sorted by name.
func (r *TemplateRepository) GetAll(ctx context.Context) ([]channel.Template, error) {
	raw, err := r.docs.all(ctx)
	if err != nil {
		return nil, err
	}
	return decodeTemplates(raw)
}

func decodeTemplates(raw []string) ([]channel.Template, error) {
	out := make([]channel.Template, 0, len(raw))
	for i, s := range raw {
		var t channel.Template
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("record %d: decode template: %w", i, err)
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
