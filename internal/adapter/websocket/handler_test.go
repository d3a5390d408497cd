package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/hub"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []string
}

func (p *recordingPublisher) Publish(_ context.Context, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, string(message))
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

type testEnv struct {
	hub     *hub.Hub
	handler *Handler
	server  *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config, publisher Publisher, checkOrigin func(*http.Request) bool) *testEnv {
	t.Helper()
	h := hub.NewHub(hub.Config{}, clockwork.NewRealClock(), nil)
	handler := NewHandler(h, publisher, checkOrigin, cfg, nil)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = handler.Close(ctx)
		srv.Close()
		h.Stop()
	})
	return &testEnv{hub: h, handler: handler, server: srv}
}

func (e *testEnv) url() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http")
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(e.url(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (e *testEnv) waitForViewers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.hub.Count() == n }, 2*time.Second, 5*time.Millisecond)
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestSession_RelaysToOtherViewers(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, nil)
	alice := env.dial(t)
	bob := env.dial(t)
	carol := env.dial(t)
	env.waitForViewers(t, 3)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("hello")))

	for _, viewer := range []*websocket.Conn{bob, carol} {
		ev := readEvent(t, viewer)
		assert.Equal(t, domain.EventMessage, ev.Type)
		assert.JSONEq(t, `"hello"`, string(ev.Payload))
	}

	// The sender gets nothing back.
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := alice.ReadMessage()
	assert.Error(t, err)
}

func TestSession_JSONPayloadIsEmbedded(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, nil)
	sender := env.dial(t)
	receiver := env.dial(t)
	env.waitForViewers(t, 2)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"focus":"109"}`)))

	ev := readEvent(t, receiver)
	assert.JSONEq(t, `{"focus":"109"}`, string(ev.Payload))
}

func TestSession_DisconnectIsAnnounced(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, nil)
	leaving := env.dial(t)
	staying := env.dial(t)
	env.waitForViewers(t, 2)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, leaving.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	ev := readEvent(t, staying)
	assert.Equal(t, domain.EventConnectionClosed, ev.Type)
	assert.Equal(t, "closed", ev.Reason)
	env.waitForViewers(t, 1)
}

func TestSession_AbruptDisconnectIsAnnounced(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, nil)
	leaving := env.dial(t)
	staying := env.dial(t)
	env.waitForViewers(t, 2)

	require.NoError(t, leaving.UnderlyingConn().Close())

	ev := readEvent(t, staying)
	assert.Equal(t, domain.EventConnectionClosed, ev.Type)
	assert.NotEmpty(t, ev.Reason)
	env.waitForViewers(t, 1)
}

func TestSession_PublishesToRelay(t *testing.T) {
	publisher := &recordingPublisher{}
	env := newTestEnv(t, Config{}, publisher, nil)
	viewer := env.dial(t)
	env.waitForViewers(t, 1)

	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, []byte("ping")))

	require.Eventually(t, func() bool { return len(publisher.published()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"message","payload":"ping"}`, publisher.published()[0])
}

func TestHandler_ConnectionLimit(t *testing.T) {
	env := newTestEnv(t, Config{MaxConnections: 1}, nil, nil)
	env.dial(t)
	env.waitForViewers(t, 1)

	_, resp, err := websocket.DefaultDialer.Dial(env.url(), nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 1, env.handler.Active())
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, NewCheckOrigin("https://graph.example.social", false))

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(env.url(), header)

	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, env.hub.Count())
}

func TestHandler_OversizedMessageClosesSession(t *testing.T) {
	env := newTestEnv(t, Config{MaxMessageSize: 16}, nil, nil)
	big := env.dial(t)
	staying := env.dial(t)
	env.waitForViewers(t, 2)

	require.NoError(t, big.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))

	ev := readEvent(t, staying)
	assert.Equal(t, domain.EventConnectionClosed, ev.Type)
	assert.Equal(t, "message_too_large", ev.Reason)
}

func TestHandler_CloseSendsGoingAway(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, nil)
	viewer := env.dial(t)
	env.waitForViewers(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.handler.Close(ctx))

	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := viewer.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, resp, err := websocket.DefaultDialer.Dial(env.url(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEncodeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello", `{"type":"message","payload":"hello"}`},
		{"json object", `{"a":1}`, `{"type":"message","payload":{"a":1}}`},
		{"json number", "42", `{"type":"message","payload":42}`},
		{"quotes", `say "hi"`, `{"type":"message","payload":"say \"hi\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeMessage([]byte(tt.in))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"normal", &websocket.CloseError{Code: websocket.CloseNormalClosure}, "closed"},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, "going_away"},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, "close_1006"},
		{"read limit", websocket.ErrReadLimit, "message_too_large"},
		{"other", assert.AnError, "connection_lost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, closeReason(tt.err))
		})
	}
}
