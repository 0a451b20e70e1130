package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/internal/hub"
	"github.com/weiawesome/peercast/internal/service"
	pkglog "github.com/weiawesome/peercast/pkg/log"
)

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub      *hub.Hub
	service  service.SignalService
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler. An empty allowedOrigins list,
// or one containing "*", accepts every origin.
func NewWSHandler(h *hub.Hub, svc service.SignalService, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// HandleWebSocket handles WebSocket upgrade and message routing.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.Ctx(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	client := hub.NewClient(h.hub, connID, conn, r.RemoteAddr)

	// The request context ends when this handler returns, so the connection
	// carries its own.
	connLog := l.With().Str(pkglog.FieldConnectionID, connID).Logger()
	ctx := pkglog.WithLogger(context.Background(), connLog)

	client.SetDisconnectHandler(func(c *hub.Client) {
		if err := h.service.HandleDisconnect(ctx, c.ID); err != nil {
			connLog.Error().Err(err).Msg("disconnect handler error")
		}
	})

	if err := h.hub.Register(client); err != nil {
		connLog.Warn().Err(err).Msg("rejecting connection")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	h.hub.SendToClient(connID, &domain.ConnectedMessage{
		Type:         domain.MsgTypeConnected,
		ConnectionID: connID,
	})
	connLog.Info().Str("remote_addr", r.RemoteAddr).Msg("peer connected")

	go client.WritePump()
	go client.ReadPump(func(c *hub.Client, message []byte) {
		h.handleMessage(ctx, c, message)
	})
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	l := pkglog.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	switch base.Type {
	case domain.MsgTypePublisherJoin:
		var msg domain.PublisherJoinMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid publisher_join message"))
			return
		}
		if err := h.service.HandlePublisherJoin(ctx, client.ID, msg.SessionID, msg.Token); err != nil {
			logRejected(ctx, err, msg.SessionID, "publisher join rejected")
		}

	case domain.MsgTypeViewerJoin:
		var msg domain.ViewerJoinMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid viewer_join message"))
			return
		}
		if err := h.service.HandleViewerJoin(ctx, client.ID, msg.SessionID); err != nil {
			logRejected(ctx, err, msg.SessionID, "viewer join rejected")
		}

	case domain.MsgTypeRelay:
		var msg domain.RelayMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid relay message"))
			return
		}
		if err := h.service.HandleRelay(ctx, client.ID, msg.To, msg.Payload); err != nil {
			l.Debug().Err(err).Str(pkglog.FieldPeerID, msg.To).Msg("relay failed")
		}

	case domain.MsgTypePing:
		h.reply(client, map[string]string{"type": domain.MsgTypePong})

	default:
		l.Debug().Str(pkglog.FieldMessageType, base.Type).Msg("unknown message type")
		h.reply(client, domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) reply(client *hub.Client, msg interface{}) {
	if err := h.hub.SendToClient(client.ID, msg); err != nil {
		l := pkglog.L()
		l.Debug().Err(err).Str(pkglog.FieldConnectionID, client.ID).Msg("reply dropped")
	}
}

// logRejected logs expected refusals quietly and everything else as an error.
func logRejected(ctx context.Context, err error, sessionID, msg string) {
	l := pkglog.Ctx(ctx)
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrAlreadyLive),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidToken):
		l.Info().Err(err).Str(pkglog.FieldSessionID, sessionID).Msg(msg)
	default:
		l.Error().Err(err).Str(pkglog.FieldSessionID, sessionID).Msg(msg)
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux, middleware func(http.Handler) http.Handler) {
	mux.Handle("/ws", middleware(http.HandlerFunc(h.HandleWebSocket)))
}
