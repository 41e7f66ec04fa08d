package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/config"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHubBroadcastsAnonymizationSummary(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{BroadcastAnonymizations: true})
	conn := dial(t, srv, nil)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.PublishAnonymization("req-1", AnonymizationEvent{
		RunID: "run-1", Mode: "name_to_id", Source: "api", Matches: 3, Replaced: 3, Identities: 2,
	})

	ev := readEvent(t, conn)
	assert.Equal(t, "anonymization", ev["type"])
	assert.Equal(t, "req-1", ev["request_id"])

	data := ev["data"].(map[string]interface{})
	assert.Equal(t, "name_to_id", data["mode"])
	assert.EqualValues(t, 3, data["matches"])
	assert.NotContains(t, data, "text")
}

func TestHubDropsDisabledEventTypes(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{BroadcastRequests: true})
	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.PublishAnonymization("", AnonymizationEvent{Mode: "email_to_fake"})
	hub.PublishRequest(RequestLogEvent{RequestID: "r2", Method: "GET", Path: "/info", StatusCode: 200})

	ev := readEvent(t, conn)
	assert.Equal(t, "request_log", ev["type"], "anonymization events are disabled")
}

func TestHubPingPong(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{})
	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	ev := readEvent(t, conn)
	assert.Equal(t, "pong", ev["type"])
}

func TestHubRequiresBasicAuthWhenConfigured(t *testing.T) {
	hub, srv := startHub(t, &HubConfig{Username: "ops", Password: "s3cret", BroadcastConnections: true})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := http.Header{"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte("ops:wrong"))}}
	_, resp, err = websocket.DefaultDialer.Dial(url, bad)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	good := http.Header{"Authorization": {"Basic " + base64.StdEncoding.EncodeToString([]byte("ops:s3cret"))}}
	first := dial(t, srv, good)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	second := dial(t, srv, good)
	ev := readEvent(t, first)
	assert.Equal(t, "connection", ev["type"])
	assert.Equal(t, "connected", ev["data"].(map[string]interface{})["action"])

	second.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	ev = readEvent(t, first)
	assert.Equal(t, "disconnected", ev["data"].(map[string]interface{})["action"])
}

func TestHubShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestShouldSendToClient(t *testing.T) {
	anon := Event{Type: EventTypeAnonymization, Data: AnonymizationEvent{Mode: "phone_to_fake"}}
	health := Event{Type: EventTypeRequestLog, Data: RequestLogEvent{Path: "/health"}}

	all := &Client{}
	assert.True(t, shouldSendToClient(all, anon))
	assert.True(t, shouldSendToClient(all, health))

	onlyAnon := &Client{Subscription: &SubscriptionRequest{Events: []EventType{EventTypeAnonymization}}}
	assert.True(t, shouldSendToClient(onlyAnon, anon))
	assert.False(t, shouldSendToClient(onlyAnon, health))

	filtered := &Client{Subscription: &SubscriptionRequest{
		Filter: &EventFilter{Modes: []string{"name_to_id"}, ExcludeHealth: true},
	}}
	assert.False(t, shouldSendToClient(filtered, anon))
	assert.False(t, shouldSendToClient(filtered, health))
	assert.True(t, shouldSendToClient(filtered, Event{Type: EventTypePong}))
}

func TestHubConfigFrom(t *testing.T) {
	cfg := config.GetDefaults().WebSocket
	cfg.Username = "ops"

	hc := HubConfigFrom(cfg)
	assert.True(t, hc.BroadcastAnonymizations)
	assert.True(t, hc.BroadcastRequests)
	assert.True(t, hc.BroadcastConnections)
	assert.Equal(t, "ops", hc.Username)
}

func TestEventJSONShape(t *testing.T) {
	raw, err := json.Marshal(Event{Type: EventTypeConnection, Data: ConnectionEvent{Action: "connected", ClientID: "c1"}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"connection"`)
	assert.NotContains(t, string(raw), "request_id")
}
