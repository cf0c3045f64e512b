package control

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/stripctl/internal/diagnostics"
	"github.com/coreman2200/stripctl/internal/mediator"
	"github.com/coreman2200/stripctl/internal/status"
	"github.com/coreman2200/stripctl/model"
)

// fakeCommander records what the surface sends.
type fakeCommander struct {
	mu      sync.Mutex
	states  []model.StateCommand
	configs []model.Segment
	layout  model.Layout
}

func (f *fakeCommander) SendStateCommand(cmd model.StateCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, cmd)
}

func (f *fakeCommander) SendSegmentConfig(seg model.Segment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, seg)
}

func (f *fakeCommander) Layout() model.Layout { return f.layout }
func (f *fakeCommander) Slots() int           { return f.layout.Slots() }
func (f *fakeCommander) Mode() mediator.Mode  { return mediator.SegmentMode }

func (f *fakeCommander) Stats() mediator.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return mediator.Stats{StateCommands: uint64(len(f.states)), PendingConfig: len(f.configs) > 0}
}

func (f *fakeCommander) lastState() model.StateCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[len(f.states)-1]
}

func (f *fakeCommander) sentConfigs() []model.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Segment(nil), f.configs...)
}

type fakeIndicator struct {
	mu    sync.Mutex
	state status.State
	color model.RGB
}

func (f *fakeIndicator) SetState(s status.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeIndicator) SetStateColor(s status.State, c model.RGB) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state, f.color = s, c
}

func (f *fakeIndicator) Current() (status.State, model.RGB) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.color
}

func newServer(t *testing.T) (*httptest.Server, *fakeCommander, *fakeIndicator, *diagnostics.Hub) {
	t.Helper()
	cmd := &fakeCommander{layout: model.LayoutOf(3, 0, 5, 0, 0, 0, 0, 0, 0, 0)}
	ind := &fakeIndicator{state: status.Solid}
	hub := diagnostics.NewHub()
	srv := httptest.NewServer(New(cmd, ind, hub, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, cmd, ind, hub
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestCachedDefaults(t *testing.T) {
	srv, _, _, _ := newServer(t)
	for path, want := range map[string]string{
		"/status":             "1",
		"/hue?index=4":        "225",
		"/saturation?index=9": "100",
		"/brightness":         "100",
	} {
		code, body := get(t, srv, path)
		assert.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, want, body, path)
	}
}

func TestPowerSendsCommand(t *testing.T) {
	srv, cmd, _, _ := newServer(t)
	code, body := get(t, srv, "/off?index=2")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Strip segment 2 was turned off.", body)
	assert.Equal(t, model.StateCommand{Index: 2, On: false, Hue: 225, Saturation: 100, Brightness: 100}, cmd.lastState())

	_, body = get(t, srv, "/status?index=2")
	assert.Equal(t, "0", body)
	_, body = get(t, srv, "/on?index=2")
	assert.Equal(t, "Strip segment 2 was turned on.", body)
	assert.True(t, cmd.lastState().On)
}

func TestSetUpdatesGivenFields(t *testing.T) {
	srv, cmd, _, _ := newServer(t)
	code, _ := get(t, srv, "/set?index=1&h=120&b=40")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.StateCommand{Index: 1, On: true, Hue: 120, Saturation: 100, Brightness: 40}, cmd.lastState())

	get(t, srv, "/set?index=1&s=500")
	assert.Equal(t, 100, cmd.lastState().Saturation, "values are clamped")
	_, body := get(t, srv, "/hue?index=1")
	assert.Equal(t, "120", body)

	code, _ = get(t, srv, "/set?h=red")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIndexOutOfRange(t *testing.T) {
	srv, cmd, _, _ := newServer(t)
	for _, path := range []string{"/status?index=10", "/on?index=-1", "/set?index=99&h=1", "/stripconfig?index=10&length=2", "/hue?index=x"} {
		code, _ := get(t, srv, path)
		assert.Equal(t, http.StatusBadRequest, code, path)
	}
	_, body := get(t, srv, "/status?index=10")
	assert.Contains(t, body, "OutOfRange")
	assert.Empty(t, cmd.sentConfigs())
}

func TestStripConfig(t *testing.T) {
	srv, cmd, _, _ := newServer(t)
	code, _ := get(t, srv, "/stripconfig?index=3")
	assert.Equal(t, http.StatusBadRequest, code, "length is required")
	code, _ = get(t, srv, "/stripconfig?index=3&length=-4")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := get(t, srv, "/stripconfig?index=3&length=12")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Segment(3) was set to 12 of lenght.", body)
	assert.Equal(t, []model.Segment{{Index: 3, Length: 12}}, cmd.sentConfigs())
}

func TestSegmentsAndHealth(t *testing.T) {
	srv, _, _, _ := newServer(t)
	_, body := get(t, srv, "/segments")
	var segs []segmentView
	require.NoError(t, json.Unmarshal([]byte(body), &segs))
	require.Len(t, segs, 10)
	assert.Equal(t, segmentView{Index: 2, Length: 5, Start: 3, End: 8}, segs[2])

	_, body = get(t, srv, "/health")
	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, 8.0, health["total"])
	assert.Equal(t, "segment", health["mode"])
}

func TestHealthReportsCounters(t *testing.T) {
	srv, _, _, hub := newServer(t)
	_, cancel := hub.Subscribe(0)
	defer cancel()
	hub.Publish(diagnostics.NotConfigured(4))
	hub.Publish(diagnostics.NotConfigured(5))
	get(t, srv, "/on?index=1")
	get(t, srv, "/stripconfig?index=1&length=2")

	_, body := get(t, srv, "/health")
	var health struct {
		Mediator    mediator.Stats `json:"mediator"`
		Diagnostics struct {
			Subscribers int `json:"subscribers"`
			Dropped     int `json:"dropped"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, uint64(1), health.Mediator.StateCommands)
	assert.True(t, health.Mediator.PendingConfig)
	assert.Equal(t, 1, health.Diagnostics.Subscribers)
	assert.Equal(t, 1, health.Diagnostics.Dropped)
}

func TestIndicator(t *testing.T) {
	srv, _, ind, _ := newServer(t)
	code, _ := get(t, srv, "/indicator?state=pulse&r=255")
	require.Equal(t, http.StatusOK, code)
	st, c := ind.Current()
	assert.Equal(t, status.Pulse, st)
	assert.Equal(t, model.RGB{R: 255}, c)

	get(t, srv, "/indicator?state=breathe")
	st, c = ind.Current()
	assert.Equal(t, status.Breathe, st)
	assert.Equal(t, model.RGB{R: 255}, c, "color kept when none is given")

	code, _ = get(t, srv, "/indicator?state=disco")
	assert.Equal(t, http.StatusBadRequest, code)

	_, body := get(t, srv, "/indicator")
	assert.Contains(t, body, `"state":"breathe"`)
}

func TestPreflight(t *testing.T) {
	srv, _, _, _ := newServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/set", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestControlWebsocket(t *testing.T) {
	srv, cmd, _, _ := newServer(t)
	conn := dial(t, srv, "/ws/control")

	exchange := func(msg string) controlReply {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		var reply controlReply
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	r := exchange(`{"op":"set","index":2,"h":10,"s":20}`)
	require.Empty(t, r.Error)
	assert.Equal(t, SegmentState{Index: 2, On: true, Hue: 10, Saturation: 20, Brightness: 100}, *r.Segment)
	assert.Equal(t, 10, cmd.lastState().Hue)

	r = exchange(`{"op":"off","index":2}`)
	assert.False(t, r.Segment.On)

	r = exchange(`{"op":"config","index":1,"length":7}`)
	require.Empty(t, r.Error)
	assert.Equal(t, []model.Segment{{Index: 1, Length: 7}}, cmd.sentConfigs())

	assert.NotEmpty(t, exchange(`{"op":"config","index":1}`).Error)
	assert.Contains(t, exchange(`{"op":"on","index":12}`).Error, "OutOfRange")
	assert.NotEmpty(t, exchange(`{"op":"dance"}`).Error)
	assert.NotEmpty(t, exchange(`not json`).Error)
}

func TestDiagWebsocket(t *testing.T) {
	srv, _, _, hub := newServer(t)
	conn := dial(t, srv, "/ws/diag")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	hub.Publish(diagnostics.NotConfigured(4))
	var d diagnostics.Diagnostic
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&d))
	assert.Equal(t, diagnostics.SegmentNotConfigured, d.Code)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, time.Millisecond)
}

// lockedBuffer is a log sink shared between a handler and the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWebsocketSkipsUnencodableMessage(t *testing.T) {
	logs := &lockedBuffer{}
	s := New(&fakeCommander{layout: model.LayoutOf(1)}, &fakeIndicator{}, diagnostics.NewHub(), zerolog.New(logs).Level(zerolog.DebugLevel))
	skipped := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			skipped <- err
			return
		}
		defer conn.Close()
		skipped <- s.writeWS(conn, make(chan int), time.Second)
		_ = s.writeWS(conn, "next", time.Second)
	}))
	defer srv.Close()

	conn := dial(t, srv, "/")
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.NoError(t, <-skipped)
	assert.Equal(t, `"next"`, string(msg))
	assert.Contains(t, logs.String(), "encode websocket message")
}
