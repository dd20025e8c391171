package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/edirooss/zmux-restream/internal/domain/channel"
	"github.com/edirooss/zmux-restream/internal/events"
	"github.com/edirooss/zmux-restream/internal/restreamer"
	"go.uber.org/zap"
)

var errRemote = errors.New("remote failure")

type mockProcess struct {
	proc    restreamer.Process
	outputs map[string]restreamer.ProcessOutput
}

// mockClient is an in-memory process service recording every call.
type mockClient struct {
	mu      sync.Mutex
	procs   map[string]*mockProcess // by process id
	nextID  int
	calls   []string
	lastErr string

	// failures injected per method name; consumed once when count > 0,
	// forever when count < 0
	fail map[string]int

	state restreamer.ProcessState

	hold *createHold
}

type createHold struct {
	started chan struct{}
	release chan struct{}
}

func newMockClient() *mockClient {
	return &mockClient{
		procs: make(map[string]*mockProcess),
		fail:  make(map[string]int),
	}
}

func (c *mockClient) failOn(method string, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[method] = times
}

func (c *mockClient) record(method string) error {
	c.calls = append(c.calls, method)
	n := c.fail[method]
	if n == 0 {
		return nil
	}
	if n > 0 {
		c.fail[method] = n - 1
	}
	c.lastErr = fmt.Sprintf("%s: %v", method, errRemote)
	return fmt.Errorf("%s: %w", method, errRemote)
}

func (c *mockClient) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.calls {
		if m == method {
			n++
		}
	}
	return n
}

// holdCreate parks the next CreateProcess call: started is closed once the
// call arrives and the call proceeds after release.
func (c *mockClient) holdCreate() (started <-chan struct{}, release func()) {
	h := &createHold{started: make(chan struct{}), release: make(chan struct{})}
	c.mu.Lock()
	c.hold = h
	c.mu.Unlock()
	return h.started, func() { close(h.release) }
}

// outputIDs returns the remote output ids of the process with reference ref.
func (c *mockClient) outputIDs(ref string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.procs {
		if p.proc.Reference != ref {
			continue
		}
		ids := make([]string, 0, len(p.outputs))
		for id := range p.outputs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}
	return nil
}

func (c *mockClient) processCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.procs)
}

// dropOutput simulates a destination falling out of the process.
func (c *mockClient) dropOutput(ref, outputID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.procs {
		if p.proc.Reference == ref {
			delete(p.outputs, outputID)
		}
	}
}

func (c *mockClient) TestConnection(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record("TestConnection")
}

func (c *mockClient) IsConnected() bool { return true }

func (c *mockClient) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *mockClient) GetProcesses(context.Context) ([]restreamer.Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetProcesses"); err != nil {
		return nil, err
	}
	out := make([]restreamer.Process, 0, len(c.procs))
	for _, p := range c.procs {
		out = append(out, p.proc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *mockClient) GetProcess(_ context.Context, id string) (*restreamer.Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetProcess"); err != nil {
		return nil, err
	}
	p, ok := c.procs[id]
	if !ok {
		return nil, restreamer.ErrProcessNotFound
	}
	proc := p.proc
	return &proc, nil
}

func (c *mockClient) GetProcessState(_ context.Context, id string) (*restreamer.ProcessState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetProcessState"); err != nil {
		return nil, err
	}
	if _, ok := c.procs[id]; !ok {
		return nil, restreamer.ErrProcessNotFound
	}
	st := c.state
	return &st, nil
}

func (c *mockClient) CreateProcess(_ context.Context, spec restreamer.ProcessSpec) error {
	c.mu.Lock()
	h := c.hold
	c.hold = nil
	c.mu.Unlock()
	if h != nil {
		close(h.started)
		<-h.release
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CreateProcess"); err != nil {
		return err
	}
	if _, err := spec.Command(); err != nil {
		return err
	}
	c.nextID++
	id := fmt.Sprintf("proc-%d", c.nextID)
	p := &mockProcess{
		proc:    restreamer.Process{ID: id, Reference: spec.Reference, State: restreamer.StateRunning},
		outputs: make(map[string]restreamer.ProcessOutput),
	}
	for _, o := range spec.Outputs {
		p.outputs[o.ID] = o
	}
	c.procs[id] = p
	return nil
}

func (c *mockClient) setState(id, state string) error {
	if err := c.record(state); err != nil {
		return err
	}
	p, ok := c.procs[id]
	if !ok {
		return restreamer.ErrProcessNotFound
	}
	p.proc.State = state
	return nil
}

func (c *mockClient) StartProcess(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setState(id, "running")
}

func (c *mockClient) StopProcess(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setState(id, "finished")
}

func (c *mockClient) RestartProcess(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setState(id, "running")
}

func (c *mockClient) DeleteProcess(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteProcess"); err != nil {
		return err
	}
	if _, ok := c.procs[id]; !ok {
		return restreamer.ErrProcessNotFound
	}
	delete(c.procs, id)
	return nil
}

func (c *mockClient) GetProcessConfig(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetProcessConfig"); err != nil {
		return "", err
	}
	return `{"id":"` + id + `"}`, nil
}

func (c *mockClient) RefreshToken(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record("RefreshToken")
}

func (c *mockClient) ForceLogin(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record("ForceLogin")
}

func (c *mockClient) GetProcessOutputs(_ context.Context, id string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetProcessOutputs"); err != nil {
		return nil, err
	}
	p, ok := c.procs[id]
	if !ok {
		return nil, restreamer.ErrProcessNotFound
	}
	ids := make([]string, 0, len(p.outputs))
	for oid := range p.outputs {
		ids = append(ids, oid)
	}
	return ids, nil
}

func (c *mockClient) AddProcessOutput(_ context.Context, id string, out restreamer.ProcessOutput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("AddProcessOutput"); err != nil {
		return err
	}
	p, ok := c.procs[id]
	if !ok {
		return restreamer.ErrProcessNotFound
	}
	p.outputs[out.ID] = out
	return nil
}

func (c *mockClient) RemoveProcessOutput(_ context.Context, id, outputID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("RemoveProcessOutput"); err != nil {
		return err
	}
	p, ok := c.procs[id]
	if !ok {
		return restreamer.ErrProcessNotFound
	}
	delete(p.outputs, outputID)
	return nil
}

func (c *mockClient) UpdateOutputEncoding(_ context.Context, id, _ string, _ restreamer.EncodingParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("UpdateOutputEncoding"); err != nil {
		return err
	}
	if _, ok := c.procs[id]; !ok {
		return restreamer.ErrProcessNotFound
	}
	return nil
}

// memoryStore is a Store kept in maps.
type memoryStore struct {
	mu        sync.Mutex
	channels  map[string]channel.Record
	templates map[string]channel.Template
	failSave  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		channels:  make(map[string]channel.Record),
		templates: make(map[string]channel.Template),
	}
}

func (s *memoryStore) SaveChannel(_ context.Context, r channel.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("store unavailable")
	}
	s.channels[r.ID] = r
	return nil
}

func (s *memoryStore) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
	return nil
}

func (s *memoryStore) LoadChannels(context.Context) ([]channel.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]channel.Record, 0, len(s.channels))
	for _, r := range s.channels {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) SaveTemplate(_ context.Context, t channel.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return nil
}

func (s *memoryStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

func (s *memoryStore) LoadTemplates(context.Context) ([]channel.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]channel.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	return out, nil
}

func (s *memoryStore) record(id string) (channel.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.channels[id]
	return r, ok
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	m      *Manager
	client *mockClient
	store  *memoryStore
	pub    *recordingPublisher
	clock  *fakeClock
	sleeps []time.Duration
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		client: newMockClient(),
		store:  newMemoryStore(),
		pub:    &recordingPublisher{},
		clock:  newFakeClock(),
	}
	var mu sync.Mutex
	base := []Option{
		WithStore(f.store),
		WithPublisher(f.pub),
		WithClock(f.clock.Now),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			f.sleeps = append(f.sleeps, d)
			mu.Unlock()
			return ctx.Err()
		}),
	}
	f.m = NewManager(zap.NewNop(), f.client, append(base, opts...)...)
	return f
}

// channelWithOutputs creates a channel with n enabled YouTube/Twitch outputs.
func (f *fixture) channelWithOutputs(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	ch, err := f.m.CreateChannel(ctx, "studio")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	for i := 0; i < n; i++ {
		svc := channel.ServiceYouTube
		if i%2 == 1 {
			svc = channel.ServiceTwitch
		}
		if _, err := f.m.AddOutput(ctx, ch.ID, channel.OutputSpec{
			Service:   svc,
			StreamKey: fmt.Sprintf("live_key_%d", i),
		}); err != nil {
			t.Fatalf("add output %d: %v", i, err)
		}
	}
	return ch.ID
}

func (f *fixture) get(t *testing.T, id string) channel.Channel {
	t.Helper()
	ch, err := f.m.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return ch
}
