package relay

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/weiawesome/peercast/internal/domain"
	pkglog "github.com/weiawesome/peercast/pkg/log"
)

// Sender delivers a message to one or more connections without blocking.
type Sender interface {
	SendToClient(connectionID string, message interface{}) error
	SendToClients(connectionIDs []string, message interface{}) (int, error)
	SendFrame(connectionID string, frame []byte) error
}

// MemberLister resolves the connections bound to a session.
type MemberLister interface {
	Members(sessionID string) []string
}

// Engine forwards negotiation payloads and session notifications. It never
// inspects payloads and every send is best effort.
type Engine struct {
	sender  Sender
	members MemberLister
	logger  zerolog.Logger
}

// NewEngine creates a relay engine.
func NewEngine(sender Sender, members MemberLister) *Engine {
	return &Engine{
		sender:  sender,
		members: members,
		logger:  pkglog.L().With().Str(pkglog.FieldComponent, "relay").Logger(),
	}
}

// Relay forwards payload from one connection to another, tagged with the
// sender. The payload bytes reach the peer unchanged. A relay without a
// destination is dropped. It reports whether the frame was queued for delivery.
func (e *Engine) Relay(from, to string, payload json.RawMessage) bool {
	if to == "" {
		return false
	}

	frame, err := domain.RelayFrame(from, payload)
	if err != nil {
		e.logger.Debug().Err(err).Str(pkglog.FieldConnectionID, from).Str(pkglog.FieldPeerID, to).Msg("relay payload rejected")
		return false
	}
	if err := e.sender.SendFrame(to, frame); err != nil {
		e.logger.Debug().Err(err).Str(pkglog.FieldConnectionID, from).Str(pkglog.FieldPeerID, to).Msg("relay dropped")
		return false
	}
	return true
}

// NotifySession sends message to every connection bound to the session.
func (e *Engine) NotifySession(sessionID string, message interface{}) int {
	return e.NotifyConnections(e.members.Members(sessionID), message)
}

// NotifyConnections sends message to an explicit set of connections. Used
// once a session's bindings are already gone.
func (e *Engine) NotifyConnections(connectionIDs []string, message interface{}) int {
	if len(connectionIDs) == 0 {
		return 0
	}
	n, err := e.sender.SendToClients(connectionIDs, message)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to encode notification")
	}
	return n
}

// NotifyViewerNoPublisher tells a viewer the session is not live yet.
func (e *Engine) NotifyViewerNoPublisher(connectionID, sessionID string) {
	e.send(connectionID, &domain.NoPublisherMessage{Type: domain.MsgTypeNoPublisher, SessionID: sessionID})
}

// NotifyViewerWantsConnection asks the publisher to start negotiating with a viewer.
func (e *Engine) NotifyViewerWantsConnection(publisherID, viewerID string) {
	e.send(publisherID, &domain.ViewerWantsConnectionMessage{
		Type:               domain.MsgTypeViewerWantsConnection,
		ViewerConnectionID: viewerID,
	})
}

// NotifyNotFound tells a connection the session it named does not exist.
func (e *Engine) NotifyNotFound(connectionID, sessionID, reason string) {
	e.send(connectionID, domain.NewNotFoundMessage(sessionID, reason))
}

// NotifyError sends an error event.
func (e *Engine) NotifyError(connectionID, code, message string) {
	e.send(connectionID, domain.NewErrorMessage(code, message))
}

// Send delivers an arbitrary message to one connection.
func (e *Engine) Send(connectionID string, message interface{}) {
	e.send(connectionID, message)
}

func (e *Engine) send(connectionID string, message interface{}) {
	if err := e.sender.SendToClient(connectionID, message); err != nil {
		e.logger.Debug().Err(err).Str(pkglog.FieldConnectionID, connectionID).Msg("message dropped")
	}
}
