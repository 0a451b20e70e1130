package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/peercast/internal/config"
	"github.com/weiawesome/peercast/internal/directory"
	"github.com/weiawesome/peercast/internal/events"
	"github.com/weiawesome/peercast/internal/hub"
	"github.com/weiawesome/peercast/internal/registry"
	"github.com/weiawesome/peercast/internal/relay"
	"github.com/weiawesome/peercast/internal/service"
	"github.com/weiawesome/peercast/pkg/jwt"
	pkglog "github.com/weiawesome/peercast/pkg/log"
)

type testServer struct {
	*httptest.Server
	hub      *hub.Hub
	registry *registry.Registry
	sessions service.SessionService
}

func newTestServer(t *testing.T, sig config.SignalingConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New()
	dir := directory.New(reg)
	h := hub.NewHub(config.WebSocketConfig{})
	tokens, err := jwt.NewManager(time.Hour, "peercast-test")
	require.NoError(t, err)

	emitter := events.NewDispatcher(16)
	engine := relay.NewEngine(h, dir)
	signal := service.NewSignalService(reg, dir, engine, tokens, emitter, nil, sig)
	sessions := service.NewSessionService(reg, signal, tokens, nil, emitter, h,
		config.SessionsConfig{MaxTitleLength: 200, ListingEnabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery(), pkglog.GinMiddleware(pkglog.L()))
	NewHandler(sessions).RegisterRoutes(r)

	mux := http.NewServeMux()
	NewWSHandler(h, signal, nil).RegisterRoutes(mux, pkglog.HTTPMiddleware(pkglog.L()))
	mux.Handle("/", r)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return &testServer{Server: srv, hub: h, registry: reg, sessions: sessions}
}

// peer is a websocket test client.
type peer struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func (s *testServer) dial(t *testing.T) *peer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &peer{t: t, conn: conn}
	msg := p.expect("connected")
	p.id = msg["connection_id"].(string)
	return p
}

func (p *peer) send(v interface{}) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(v))
}

func (p *peer) sendRaw(data string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (p *peer) next() map[string]interface{} {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	var msg map[string]interface{}
	require.NoError(p.t, json.Unmarshal(data, &msg))
	return msg
}

func (p *peer) expect(msgType string) map[string]interface{} {
	p.t.Helper()
	msg := p.next()
	require.Equal(p.t, msgType, msg["type"], "unexpected message %v", msg)
	return msg
}
