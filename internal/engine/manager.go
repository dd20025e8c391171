// Package engine orchestrates channels: their lifecycle, outputs, failover and
// health, driving the remote process-execution service through a
// restreamer.Client.
//
// Runtime model
//   - Many concurrent callers (HTTP handlers, the monitor).
//   - Mutations of the SAME channel are serialised by a per-channel gate.
//   - Reads take a short lock on the channel record and return snapshots, so a
//     reader may observe STARTING while the remote call is in flight.
//   - Local mutations are clone-modify-swap: a failed validation leaves the
//     channel untouched.
//   - Remote-first: state that depends on a remote call is committed only after
//     the call returns. Persistence is write-behind; store errors are logged
//     and counted, never rolled back into memory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds StartAll/StopAll/Close fan-out.
const DefaultParallelism = 8

// entry is the runtime slot of one channel.
type entry struct {
	id   string
	gate *gate

	mu         sync.RWMutex
	ch         channel.Channel
	stats      ProcessStats
	lastHealth time.Time

	deleted bool // written and read only while holding gate

	events events.Buffer
}

func (e *entry) snapshot() channel.Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ch.Clone()
}

// Manager owns every channel and the process client.
type Manager struct {
	log *zap.Logger

	clientMu sync.RWMutex
	client   restreamer.Client

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // insertion order
	closed  bool

	tmplMu    sync.RWMutex
	templates map[string]channel.Template

	store       Store
	pub         events.Publisher
	metrics     *Metrics
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	parallelism int
	failFast    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists channel and template records.
func WithStore(s Store) Option { return func(m *Manager) { m.store = s } }

// WithPublisher fans events out (e.g. to MQTT).
func WithPublisher(p events.Publisher) Option { return func(m *Manager) { m.pub = p } }

func WithMetrics(mt *Metrics) Option { return func(m *Manager) { m.metrics = mt } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithSleep replaces the wait between reconnect attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

func WithParallelism(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithFailFast makes mutations of a channel that is already being mutated
// return ErrLocked instead of waiting.
func WithFailFast() Option { return func(m *Manager) { m.failFast = true } }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewManager returns an empty manager. client may be nil; operations that
// need the remote service then fail with ErrNoClient.
func NewManager(log *zap.Logger, client restreamer.Client, opts ...Option) *Manager {
	m := &Manager{
		log:         log.Named("engine"),
		client:      client,
		entries:     make(map[string]*entry),
		templates:   make(map[string]channel.Template),
		store:       nopStore{},
		pub:         events.NopPublisher{},
		now:         time.Now,
		sleep:       sleepCtx,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, t := range channel.BuiltinTemplates() {
		m.templates[t.ID] = t
	}
	return m
}

// SetClient replaces the process client. Running channels are not touched.
func (m *Manager) SetClient(c restreamer.Client) {
	m.clientMu.Lock()
	m.client = c
	m.clientMu.Unlock()
}

// Client returns the bound process client (may be nil).
func (m *Manager) Client() restreamer.Client {
	m.clientMu.RLock()
	defer m.clientMu.RUnlock()
	return m.client
}

func (m *Manager) entry(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return e, nil
}

// ids returns channel ids in insertion order.
func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Manager) insert(ch channel.Channel) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, dup := m.entries[ch.ID]; dup {
		return nil, fmt.Errorf("channel %s already exists", ch.ID)
	}
	e := &entry{id: ch.ID, gate: newGate(), ch: ch}
	m.entries[ch.ID] = e
	m.order = append(m.order, ch.ID)
	return e, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// commit swaps in next, emitting a status event when the status changed.
// The caller holds the gate.
func (m *Manager) commit(ctx context.Context, e *entry, next channel.Channel) {
	e.mu.Lock()
	prev := e.ch.Status
	e.ch = next
	e.mu.Unlock()

	if prev != next.Status {
		m.log.Info("channel status changed",
			zap.String("channel_id", next.ID),
			zap.Stringer("from", prev),
			zap.Stringer("to", next.Status))
		m.emit(ctx, e, events.Event{
			ChannelID: next.ID,
			Type:      events.TypeStatus,
			Status:    next.Status.String(),
			Output:    channel.NoIndex,
			Message:   next.LastError,
		})
		m.refreshGauges()
	}
}

// persist writes the channel record; failures are logged and counted.
func (m *Manager) persist(ctx context.Context, ch *channel.Channel) {
	if err := m.store.SaveChannel(ctx, ch.ToRecord(m.now())); err != nil {
		m.metrics.RecordPersistError()
		m.log.Error("persist channel failed", zap.String("channel_id", ch.ID), zap.Error(err))
	}
}

// mutate applies fn to a copy of the channel and swaps it in on success.
func (m *Manager) mutate(ctx context.Context, id, op string, fn func(ch *channel.Channel) error) (err error) {
	defer func() { m.metrics.RecordOperation(op, err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	next := e.snapshot()
	if err := fn(&next); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.commit(ctx, e, next)
	m.persist(ctx, &next)
	return nil
}

// emit records ev in the channel history and publishes it.
func (m *Manager) emit(ctx context.Context, e *entry, ev events.Event) {
	if ev.Time.IsZero() {
		ev.Time = m.now()
	}
	e.events.Append(ev)
	if err := m.pub.Publish(ctx, ev); err != nil {
		m.log.Warn("publish event failed",
			zap.String("channel_id", ev.ChannelID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

func (m *Manager) refreshGauges() {
	if m.metrics == nil {
		return
	}
	m.mu.RLock()
	total := len(m.entries)
	m.mu.RUnlock()
	m.metrics.SetChannels(total, m.ActiveCount())
}

// CreateChannel appends a new INACTIVE channel with a fresh id.
func (m *Manager) CreateChannel(ctx context.Context, name string) (_ channel.Channel, err error) {
	defer func() { m.metrics.RecordOperation("create_channel", err) }()

	name = strings.TrimSpace(name)
	if err := channel.ValidateName(name); err != nil {
		return channel.Channel{}, err
	}
	ch := channel.New(uuid.NewString(), name)
	ch.CreatedAt = m.now().UTC()

	if _, err := m.insert(*ch); err != nil {
		return channel.Channel{}, err
	}
	m.persist(ctx, ch)
	m.refreshGauges()
	m.log.Info("channel created", zap.String("channel_id", ch.ID), zap.String("name", name))
	return ch.Clone(), nil
}

// Get returns a snapshot of one channel.
func (m *Manager) Get(id string) (channel.Channel, error) {
	e, err := m.entry(id)
	if err != nil {
		return channel.Channel{}, err
	}
	return e.snapshot(), nil
}

// List returns snapshots of every channel in insertion order.
func (m *Manager) List() []channel.Channel {
	if m == nil {
		return nil
	}
	out := make([]channel.Channel, 0)
	for _, id := range m.ids() {
		if e, err := m.entry(id); err == nil {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Events returns up to n recent events of a channel, newest first.
func (m *Manager) Events(id string, n int) ([]events.Event, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	return e.events.Read(n), nil
}

// ActiveCount is the number of ACTIVE channels.
func (m *Manager) ActiveCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, id := range m.ids() {
		e, err := m.entry(id)
		if err != nil {
			continue
		}
		e.mu.RLock()
		if e.ch.Status == channel.StatusActive {
			n++
		}
		e.mu.RUnlock()
	}
	return n
}

// UpdateChannel applies fn to the channel settings. Channels owning a live
// process must be stopped first.
func (m *Manager) UpdateChannel(ctx context.Context, id string, fn func(ch *channel.Channel) error) error {
	return m.mutate(ctx, id, "update_channel", func(ch *channel.Channel) error {
		if ch.IsLive() || ch.Status == channel.StatusStarting || ch.Status == channel.StatusStopping {
			return ErrChannelLive
		}
		if err := fn(ch); err != nil {
			return err
		}
		return ch.Validate()
	})
}

// DeleteChannel stops the channel when it owns a process, then drops it.
func (m *Manager) DeleteChannel(ctx context.Context, id string) (err error) {
	defer func() { m.metrics.RecordOperation("delete_channel", err) }()

	e, unlock, err := m.acquire(ctx, id, true)
	defer unlock()
	if err != nil {
		return err
	}

	if cur := e.snapshot(); cur.IsLive() {
		if err := m.stop(ctx, e); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
	}

	e.deleted = true
	m.remove(id)
	if err := m.store.DeleteChannel(ctx, id); err != nil {
		m.metrics.RecordPersistError()
		m.log.Error("delete channel record failed", zap.String("channel_id", id), zap.Error(err))
	}
	m.refreshGauges()
	m.log.Info("channel deleted", zap.String("channel_id", id))
	return nil
}

// DuplicateChannel copies the outputs and settings of src into a new
// INACTIVE channel named name.
func (m *Manager) DuplicateChannel(ctx context.Context, srcID, name string) (_ channel.Channel, err error) {
	defer func() { m.metrics.RecordOperation("duplicate_channel", err) }()

	name = strings.TrimSpace(name)
	if err := channel.ValidateName(name); err != nil {
		return channel.Channel{}, err
	}
	src, err := m.Get(srcID)
	if err != nil {
		return channel.Channel{}, err
	}

	dup := src.Duplicate(uuid.NewString(), name)
	dup.CreatedAt = m.now().UTC()
	for i := range dup.Outputs {
		dup.Outputs[i].ID = uuid.NewString()
	}

	if _, err := m.insert(*dup); err != nil {
		return channel.Channel{}, err
	}
	m.persist(ctx, dup)
	m.refreshGauges()
	m.log.Info("channel duplicated",
		zap.String("channel_id", dup.ID),
		zap.String("source_id", srcID))
	return dup.Clone(), nil
}

// Load restores persisted channels and templates. Restored channels are INACTIVE.
func (m *Manager) Load(ctx context.Context) error {
	recs, err := m.store.LoadChannels(ctx)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	for _, r := range recs {
		ch, err := channel.FromRecord(r)
		if err != nil {
			m.log.Warn("skipping invalid channel record", zap.String("channel_id", r.ID), zap.Error(err))
			continue
		}
		if _, err := m.insert(*ch); err != nil {
			m.log.Warn("skipping channel record", zap.String("channel_id", r.ID), zap.Error(err))
		}
	}

	tmpls, err := m.store.LoadTemplates(ctx)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	m.tmplMu.Lock()
	for _, t := range tmpls {
		if channel.IsBuiltinID(t.ID) {
			continue
		}
		m.templates[t.ID] = t
	}
	m.tmplMu.Unlock()

	m.refreshGauges()
	m.log.Info("state restored", zap.Int("channels", len(recs)), zap.Int("templates", len(tmpls)))
	return nil
}

// forEach runs fn for every channel id concurrently (bounded) and joins the errors.
func (m *Manager) forEach(ids []string, fn func(id string) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(m.parallelism)
	for _, id := range ids {
		g.Go(func() error {
			if err := fn(id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("channel %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// StartAll attempts to start every channel.
func (m *Manager) StartAll(ctx context.Context) error {
	return m.forEach(m.ids(), func(id string) error { return m.Start(ctx, id) })
}

// StopAll attempts to stop every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	return m.forEach(m.ids(), func(id string) error { return m.Stop(ctx, id) })
}

// StartAutoStart starts the channels flagged AutoStart.
func (m *Manager) StartAutoStart(ctx context.Context) error {
	var ids []string
	for _, ch := range m.List() {
		if ch.AutoStart {
			ids = append(ids, ch.ID)
		}
	}
	return m.forEach(ids, func(id string) error { return m.Start(ctx, id) })
}

// Close stops every channel that owns a remote process and drops all
// channels. It is idempotent and safe on a nil Manager.
//
// New operations fail with ErrClosed as soon as Close begins. Operations
// already holding a channel gate are waited for, so a start in flight is
// stopped once it has committed its process reference.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := append([]string(nil), m.order...)
	byID := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		byID[id] = e
	}
	m.mu.Unlock()

	var stopped atomic.Int64
	err := m.forEach(ids, func(id string) error {
		e := byID[id]
		if e == nil {
			return nil
		}
		if err := e.gate.Lock(ctx); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		defer e.gate.Unlock()

		e.deleted = true
		snap := e.snapshot()
		if !snap.IsLive() {
			return nil
		}
		stopped.Add(1)
		return m.stop(ctx, e)
	})

	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.order = nil
	m.mu.Unlock()

	m.log.Info("manager closed", zap.Int64("stopped", stopped.Load()))
	return err
}
