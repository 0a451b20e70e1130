package domain

import (
	"encoding/json"
	"errors"
)

// ErrInvalidPayload is returned for relay payloads that are not JSON.
var ErrInvalidPayload = errors.New("relay payload is not valid JSON")

// WebSocket message types from client.
const (
	MsgTypePublisherJoin = "publisher_join"
	MsgTypeViewerJoin    = "viewer_join"
	MsgTypeRelay         = "relay"
	MsgTypePing          = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeConnected             = "connected"
	MsgTypeSessionUpdated        = "session_updated"
	MsgTypeViewerWantsConnection = "viewer_wants_connection"
	MsgTypeNoPublisher           = "no_publisher"
	MsgTypeNotFound              = "not_found"
	MsgTypeError                 = "error"
	MsgTypePong                  = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// PublisherJoinMessage claims the publisher role for a session.
type PublisherJoinMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Token     string `json:"token,omitempty"`
}

// ViewerJoinMessage asks to watch a session.
type ViewerJoinMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// RelayMessage carries an opaque negotiation payload to another connection.
type RelayMessage struct {
	Type    string          `json:"type"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// Server -> Client messages

// ConnectedMessage tells a peer its connection id.
type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

// SessionUpdatedMessage carries a fresh session snapshot.
type SessionUpdatedMessage struct {
	Type    string  `json:"type"`
	Session Session `json:"session"`
}

// ViewerWantsConnectionMessage tells a publisher to start negotiating with a viewer.
type ViewerWantsConnectionMessage struct {
	Type               string `json:"type"`
	ViewerConnectionID string `json:"viewer_connection_id"`
}

// RelayedMessage is a relay payload tagged with its sender. Frames of this
// shape are built with RelayFrame.
type RelayedMessage struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// RelayFrame encodes a relayed message with payload copied byte for byte.
func RelayFrame(from string, payload json.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}
	sender, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(relayFramePrefix)+len(sender)+len(relayFramePayload)+len(payload)+1)
	frame = append(frame, relayFramePrefix...)
	frame = append(frame, sender...)
	frame = append(frame, relayFramePayload...)
	frame = append(frame, payload...)
	return append(frame, '}'), nil
}

const (
	relayFramePrefix  = `{"type":"` + MsgTypeRelay + `","from":`
	relayFramePayload = `,"payload":`
)

// NoPublisherMessage tells a viewer the session has no publisher yet.
type NoPublisherMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// NotFoundMessage tells a peer the session it named does not exist.
type NotFoundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// ErrorMessage is sent when an error occurs.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeAlreadyLive       = "ALREADY_LIVE"
	ErrCodePublisherReplaced = "PUBLISHER_REPLACED"
)

// ReasonSessionNotFound is the not_found reason for unknown sessions.
const ReasonSessionNotFound = "session not found"

// NewErrorMessage creates a new error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// NewSessionUpdatedMessage wraps a snapshot for broadcast.
func NewSessionUpdatedMessage(s Session) *SessionUpdatedMessage {
	return &SessionUpdatedMessage{Type: MsgTypeSessionUpdated, Session: s}
}

// NewNotFoundMessage creates a not_found event.
func NewNotFoundMessage(sessionID, reason string) *NotFoundMessage {
	return &NotFoundMessage{Type: MsgTypeNotFound, SessionID: sessionID, Reason: reason}
}
