package pubsub

import "fmt"

// Channel naming conventions. Every channel has the shape
// {prefix}:session:{sessionID}:to_{target} so that the Kafka driver can map
// it onto a fixed topic keyed by session.
const (
	// Signal -> observers (lifecycle notifications)
	ChannelSignalToObservers = "signal:session:%s:to_observers"

	// Control plane -> signal (administrative commands)
	ChannelControlToSignal = "control:session:%s:to_signal"
)

// Event types for Signal -> observers.
const (
	EventSessionCreated    = "session_created"
	EventSessionLive       = "session_live"
	EventViewerJoined      = "viewer_joined"
	EventPublisherReplaced = "publisher_replaced"
	EventSessionDestroyed  = "session_destroyed"
)

// Event types for control -> Signal.
const (
	EventCloseSession = "close_session"
)

// SignalToObserversChannel returns the channel name for lifecycle notifications.
func SignalToObserversChannel(sessionID string) string {
	return fmt.Sprintf(ChannelSignalToObservers, sessionID)
}

// ControlToSignalChannel returns the channel name for control commands.
func ControlToSignalChannel(sessionID string) string {
	return fmt.Sprintf(ChannelControlToSignal, sessionID)
}

// ControlToSignalPattern matches control commands for every session.
func ControlToSignalPattern() string {
	return fmt.Sprintf(ChannelControlToSignal, "*")
}

// LifecyclePayload describes a session state change.
type LifecyclePayload struct {
	SessionID    string `json:"session_id"`
	Code         string `json:"code"`
	ConnectionID string `json:"connection_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Recipients   int    `json:"recipients,omitempty"`
}

// CloseSessionPayload asks the signaling process to destroy a session.
type CloseSessionPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}
