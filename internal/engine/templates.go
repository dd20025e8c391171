package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Templates lists every template: builtins first, then custom ones by name.
func (m *Manager) Templates() []channel.Template {
	m.tmplMu.RLock()
	out := make([]channel.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	m.tmplMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Builtin != out[j].Builtin {
			return out[i].Builtin
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Template returns one template by id.
func (m *Manager) Template(id string) (channel.Template, error) {
	m.tmplMu.RLock()
	defer m.tmplMu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return channel.Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// CreateTemplate stores a custom template. An empty id is generated.
func (m *Manager) CreateTemplate(ctx context.Context, t channel.Template) (_ channel.Template, err error) {
	defer func() { m.metrics.RecordOperation("create_template", err) }()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Builtin = false
	if err := t.Validate(); err != nil {
		return channel.Template{}, err
	}

	m.tmplMu.Lock()
	if _, dup := m.templates[t.ID]; dup {
		m.tmplMu.Unlock()
		return channel.Template{}, fmt.Errorf("%w: %s", ErrTemplateExists, t.ID)
	}
	m.templates[t.ID] = t
	m.tmplMu.Unlock()

	if err := m.store.SaveTemplate(ctx, t); err != nil {
		m.metrics.RecordPersistError()
		m.log.Error("persist template failed", zap.String("template_id", t.ID), zap.Error(err))
	}
	return t, nil
}

// DeleteTemplate removes a custom template. Builtins cannot be deleted.
func (m *Manager) DeleteTemplate(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("delete_template", err) }()

	if channel.IsBuiltinID(id) {
		return ErrBuiltinTemplate
	}

	m.tmplMu.Lock()
	if _, ok := m.templates[id]; !ok {
		m.tmplMu.Unlock()
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	delete(m.templates, id)
	m.tmplMu.Unlock()

	if err := m.store.DeleteTemplate(ctx, id); err != nil {
		m.metrics.RecordPersistError()
		m.log.Error("delete template record failed", zap.String("template_id", id), zap.Error(err))
	}
	return nil
}

// ApplyTemplate adds an output built from the template to the channel and
// returns its index.
func (m *Manager) ApplyTemplate(ctx context.Context, id, templateID, streamKey string) (int, error) {
	t, err := m.Template(templateID)
	if err != nil {
		return channel.NoIndex, err
	}
	return m.AddOutput(ctx, id, t.OutputSpec("", streamKey))
}
