package restreamer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// fakeRestreamer is a minimal in-memory Restreamer v3 API.
type fakeRestreamer struct {
	t *testing.T

	mu          sync.Mutex
	logins      int
	listCalls   int
	loginStatus int
	tokenSeq    int
	validToken  string
	rejectNext  bool // next authenticated call answers 401
	failNext    int  // next N authenticated calls answer 503
	processes   []Process
	outputs     map[string][]string
	lastBody    map[string]any
}

func newFakeRestreamer(t *testing.T) (*fakeRestreamer, *httptest.Server) {
	f := &fakeRestreamer{t: t, loginStatus: http.StatusOK, outputs: map[string][]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRestreamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if r.URL.Path == "/api/login" {
		f.logins++
		if f.loginStatus != http.StatusOK {
			w.WriteHeader(f.loginStatus)
			return
		}
		f.tokenSeq++
		f.validToken = "tok-" + string(rune('0'+f.tokenSeq))
		writeJSON(w, map[string]any{"access_token": f.validToken, "refresh_token": "refresh-1"})
		return
	}

	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if r.URL.Path == "/api/v3/refresh" {
		if auth != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.tokenSeq++
		f.validToken = "tok-" + string(rune('0'+f.tokenSeq))
		writeJSON(w, map[string]any{"access_token": f.validToken, "expires_at": time.Now().Add(time.Hour).Unix()})
		return
	}

	if auth != f.validToken || f.rejectNext {
		f.rejectNext = false
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.failNext > 0 {
		f.failNext--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	f.lastBody = body

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v3/process":
		f.listCalls++
		writeJSON(w, f.processes)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v3/process":
		id := "proc-" + body["reference"].(string)
		f.processes = append(f.processes, Process{ID: id, Reference: body["reference"].(string), State: StateRunning})
		writeJSON(w, map[string]any{"id": id})
	case strings.HasPrefix(r.URL.Path, "/api/v3/process/"):
		f.serveProcess(w, r, strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v3/process/"), "/"), body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRestreamer) serveProcess(w http.ResponseWriter, r *http.Request, parts []string, body map[string]any) {
	idx := -1
	for i := range f.processes {
		if f.processes[i].ID == parts[0] {
			idx = i
		}
	}
	if idx < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, f.processes[idx])
	case len(parts) == 1 && r.Method == http.MethodDelete:
		f.processes = append(f.processes[:idx], f.processes[idx+1:]...)
	case parts[1] == "command":
		if body["command"] == "stop" {
			f.processes[idx].State = "finished"
		}
	case parts[1] == "state":
		writeJSON(w, map[string]any{"order": "start", "running": true, "progress": map[string]any{"bitrate": 6000, "size_kb": 2, "dropped_frames": 3}})
	case parts[1] == "config":
		writeJSON(w, map[string]any{"id": id})
	case parts[1] == "outputs" && len(parts) == 2 && r.Method == http.MethodGet:
		outs := make([]map[string]string, 0)
		for _, o := range f.outputs[id] {
			outs = append(outs, map[string]string{"id": o})
		}
		writeJSON(w, map[string]any{"outputs": outs})
	case parts[1] == "outputs" && len(parts) == 2 && r.Method == http.MethodPost:
		f.outputs[id] = append(f.outputs[id], body["id"].(string))
	case parts[1] == "outputs" && len(parts) == 3 && r.Method == http.MethodDelete:
		kept := f.outputs[id][:0]
		for _, o := range f.outputs[id] {
			if o != parts[2] {
				kept = append(kept, o)
			}
		}
		f.outputs[id] = kept
	case parts[1] == "outputs" && len(parts) == 4 && r.Method == http.MethodPut:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(zap.NewNop(), Config{
		BaseURL:       srv.URL,
		Username:      "admin",
		Password:      "secret",
		RetryAttempts: 3,
		RetryInterval: time.Millisecond,
		LoginRate:     rate.Inf,
	})
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient_RequiresURL(t *testing.T) {
	_, err := NewHTTPClient(zap.NewNop(), Config{})
	require.Error(t, err)
}

func TestHTTPClient_LoginAndList(t *testing.T) {
	f, srv := newFakeRestreamer(t)
	f.processes = []Process{{ID: "p1", Reference: "ch-1", State: StateRunning}}
	c := newTestClient(t, srv)
	ctx := context.Background()

	assert.False(t, c.IsConnected())
	require.NoError(t, c.TestConnection(ctx))
	assert.True(t, c.IsConnected())

	procs, err := c.GetProcesses(ctx)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.True(t, procs[0].Running())
	assert.Equal(t, 1, f.logins, "token reused")
}

func TestFindByReference_UsesCache(t *testing.T) {
	f, srv := newFakeRestreamer(t)
	f.processes = []Process{{ID: "p1", Reference: "ch-1"}, {ID: "p2", Reference: "ch-2"}}
	c := newTestClient(t, srv)
	ctx := context.Background()

	p, err := FindByReference(ctx, c, "ch-2")
	require.NoError(t, err)
	assert.Equal(t, "p2", p.ID)

	p, err = FindByReference(ctx, c, "ch-2")
	require.NoError(t, err)
	assert.Equal(t, "p2", p.ID)
	assert.Equal(t, 1, f.listCalls, "second lookup served by the id cache")

	_, err = FindByReference(ctx, c, "missing")
	require.ErrorIs(t, err, ErrProcessNotFound)
}

func TestHTTPClient_ReloginOn401(t *testing.T) {
	f, srv := newFakeRestreamer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.GetProcesses(ctx)
	require.NoError(t, err)

	f.mu.Lock()
	f.rejectNext = true
	f.mu.Unlock()

	_, err = c.GetProcesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.logins)
}

func TestHTTPClient_RetriesTransientFailures(t *testing.T) {
	f, srv := newFakeRestreamer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()
	require.NoError(t, c.ForceLogin(ctx))

	f.mu.Lock()
	f.failNext = 2
	f.mu.Unlock()
	_, err := c.GetProcesses(ctx)
	require.NoError(t, err)

	f.mu.Lock()
	f.failNext = 5
	f.mu.Unlock()
	_, err = c.GetProcesses(ctx)
	require.Error(t, err)
	assert.Contains(t, c.LastError(), "503")
	assert.False(t, c.IsConnected())
}

func TestHTTPClient_NotFound(t *testing.T) {
	_, srv := newFakeRestreamer(t)
	c := newTestClient(t, srv)

	_, err := c.GetProcess(context.Background(), "nope")
	require.ErrorIs(t, err, ErrProcessNotFound)
	assert.NotEmpty(t, c.LastError())
}

func TestHTTPClient_LoginBackoff(t *testing.T) {
	f, srv := newFakeRestreamer(t)
	f.loginStatus = http.StatusForbidden
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.GetProcesses(ctx)
	require.Error(t, err)
	assert.Contains(t, c.LastError(), "403")

	_, err = c.GetProcesses(ctx)
	require.ErrorIs(t, err, ErrLoginThrottled)
	assert.Equal(t, 1, f.logins, "throttled attempt never reached the server")

	// past the backoff window
	c.now = func() time.Time { return time.Now().Add(10 * time.Second) }
	f.mu.Lock()
	f.loginStatus = http.StatusOK
	f.mu.Unlock()
	_, err = c.GetProcesses(ctx)
	require.NoError(t, err)
}

func TestHTTPClient_NoCredentials(t *testing.T) {
	_, srv := newFakeRestreamer(t)
	c, err := NewHTTPClient(zap.NewNop(), Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.GetProcesses(context.Background())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestHTTPClient_RefreshToken(t *testing.T) {
	_, srv := newFakeRestreamer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	require.ErrorIs(t, c.RefreshToken(ctx), ErrNoRefreshToken)
	require.NoError(t, c.ForceLogin(ctx))
	require.NoError(t, c.RefreshToken(ctx))

	_, err := c.GetProcesses(ctx)
	require.NoError(t, err)
}

func TestHTTPClient_ProcessLifecycle(t *testing.T) {
	f, srv := newFakeRestreamer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	spec := ProcessSpec{
		Reference: "ch-1",
		InputURL:  "rtmp://localhost/live/in",
		Outputs: []ProcessOutput{
			{ID: "twitch_aaaa", URL: "rtmp://live.twitch.tv/app/key1"},
			{ID: "youtube_bbbb", URL: "rtmp://a.rtmp.youtube.com/live2/key2"},
		},
	}
	require.NoError(t, c.CreateProcess(ctx, spec))

	f.mu.Lock()
	assert.Equal(t, "ch-1", f.lastBody["reference"])
	assert.Equal(t, true, f.lastBody["autostart"])
	assert.Contains(t, f.lastBody["command"], "-f tee")
	assert.Contains(t, f.lastBody["command"], `"[f=flv]rtmp://live.twitch.tv/app/key1|[f=flv]rtmp://a.rtmp.youtube.com/live2/key2"`)
	f.mu.Unlock()

	id, ok := c.cachedProcessID("ch-1")
	require.True(t, ok)
	assert.Equal(t, "proc-ch-1", id)

	require.NoError(t, c.AddProcessOutput(ctx, id, ProcessOutput{ID: "kick_cccc", URL: "rtmp://stream.kick.com/app/k"}))
	outs, err := c.GetProcessOutputs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"kick_cccc"}, outs)

	require.NoError(t, c.RemoveProcessOutput(ctx, id, "kick_cccc"))
	outs, err = c.GetProcessOutputs(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, outs)

	st, err := c.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.EqualValues(t, 2048, st.BytesWritten)
	assert.EqualValues(t, 3, st.DroppedFrames)

	cfg, err := c.GetProcessConfig(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, cfg, id)

	require.NoError(t, c.StopProcess(ctx, id))
	p, err := c.GetProcess(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.Running())

	require.NoError(t, c.DeleteProcess(ctx, id))
	_, ok = c.cachedProcessID("ch-1")
	assert.False(t, ok)
}

func TestHTTPClient_CreateProcessValidates(t *testing.T) {
	_, srv := newFakeRestreamer(t)
	c := newTestClient(t, srv)

	err := c.CreateProcess(context.Background(), ProcessSpec{Reference: "ch", InputURL: "rtmp://in/a/b"})
	require.Error(t, err)
	assert.NotEmpty(t, c.LastError())
}

func TestHTTPClient_UpdateOutputEncoding(t *testing.T) {
	f, srv := newFakeRestreamer(t)
	f.processes = []Process{{ID: "p1", Reference: "ch-1"}}
	c := newTestClient(t, srv)

	err := c.UpdateOutputEncoding(context.Background(), "p1", "twitch_aaaa", EncodingParams{
		VideoBitrateKbps: 4500,
		AudioBitrateKbps: 128,
		Width:            1280,
		Height:           720,
	})
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.EqualValues(t, 4500000, f.lastBody["video_bitrate"])
	assert.EqualValues(t, 128000, f.lastBody["audio_bitrate"])
	assert.Equal(t, map[string]any{"width": float64(1280), "height": float64(720)}, f.lastBody["resolution"])
	assert.NotContains(t, f.lastBody, "fps")
}
