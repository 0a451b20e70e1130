package domain

import "time"

// Lifecycle event types. They match the pubsub event names.
const (
	EventSessionCreated    = "session_created"
	EventSessionLive       = "session_live"
	EventViewerJoined      = "viewer_joined"
	EventPublisherReplaced = "publisher_replaced"
	EventSessionDestroyed  = "session_destroyed"
)

// Reasons a session is destroyed.
const (
	ReasonPublisherDisconnect = "publisher_disconnect"
	ReasonClosed              = "closed"
	ReasonControl             = "control"
)

// LifecycleEvent records one state change of a session. Events are emitted
// after the change is applied and are delivered to sinks asynchronously.
type LifecycleEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	SessionID    string    `json:"session_id"`
	Code         string    `json:"code"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Recipients   int       `json:"recipients,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
