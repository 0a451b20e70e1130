package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/weiawesome/peercast/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyLive     = errors.New("session already has a publisher")
	ErrInvalidToken    = errors.New("invalid publish token")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrJournalDisabled = errors.New("session journal is disabled")
)

// SignalService is the session lifecycle controller. It reacts to events
// arriving on websocket connections.
type SignalService interface {
	// HandlePublisherJoin makes the connection the session's publisher.
	HandlePublisherJoin(ctx context.Context, connID, sessionID, token string) error

	// HandleViewerJoin binds the connection as a viewer and starts negotiation
	// with the publisher, if there is one.
	HandleViewerJoin(ctx context.Context, connID, sessionID string) error

	// HandleRelay forwards an opaque payload to another connection.
	HandleRelay(ctx context.Context, connID, to string, payload json.RawMessage) error

	// HandleDisconnect tears down everything the connection owned. Safe to
	// call more than once.
	HandleDisconnect(ctx context.Context, connID string) error

	// CloseSession destroys a session regardless of its state.
	CloseSession(ctx context.Context, sessionID, reason string) (domain.Session, error)

	// Start starts background goroutines (control subscriber, housekeeping).
	Start(ctx context.Context) error

	// Stop stops background goroutines.
	Stop() error
}

// SessionService backs the HTTP create/lookup surface.
type SessionService interface {
	Create(ctx context.Context, req *domain.CreateSessionRequest) (*domain.CreateSessionResponse, error)
	GetByCode(ctx context.Context, code string) (domain.Session, error)
	GetByID(ctx context.Context, id string) (domain.Session, error)
	ListPublic(ctx context.Context) []domain.Session
	Close(ctx context.Context, id, token string) (domain.Session, error)
	Events(ctx context.Context, id string, limit int) ([]domain.LifecycleEvent, error)
	Stats() Stats
}

// Stats is a point-in-time count for health reporting.
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

// EventEmitter accepts lifecycle events for asynchronous delivery.
type EventEmitter interface {
	Emit(event *domain.LifecycleEvent)
}

// ConnectionCounter reports how many websocket connections are open.
type ConnectionCounter interface {
	ClientCount() int
}
