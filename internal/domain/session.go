package domain

import (
	"encoding/json"
	"sync"
	"time"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionLive      SessionState = "live"
	SessionDestroyed SessionState = "destroyed"
)

// Session is a rendezvous point between one publisher and any number of viewers.
// Values of this type are snapshots; the registry owns the live record.
type Session struct {
	ID                  string
	Code                string
	Title               string
	Owner               string
	IsPublic            bool
	CreatedAt           time.Time
	PublisherConnection string
}

// State derives the lifecycle state from the snapshot.
func (s Session) State() SessionState {
	if s.PublisherConnection != "" {
		return SessionLive
	}
	return SessionCreated
}

// IsLive reports whether a publisher is attached.
func (s Session) IsLive() bool {
	return s.State() == SessionLive
}

// WithoutPublisher returns a copy with the publisher cleared.
func (s Session) WithoutPublisher() Session {
	s.PublisherConnection = ""
	return s
}

// sessionJSON is the wire shape of a session snapshot.
type sessionJSON struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"`
	Title               string    `json:"title"`
	Owner               string    `json:"owner"`
	IsPublic            bool      `json:"is_public"`
	CreatedAt           time.Time `json:"created_at"`
	PublisherConnection *string   `json:"publisher_connection"`
}

// MarshalJSON renders an absent publisher as null.
func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		ID:        s.ID,
		Code:      s.Code,
		Title:     s.Title,
		Owner:     s.Owner,
		IsPublic:  s.IsPublic,
		CreatedAt: s.CreatedAt,
	}
	if s.PublisherConnection != "" {
		pc := s.PublisherConnection
		out.PublisherConnection = &pc
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Session) UnmarshalJSON(data []byte) error {
	var in sessionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Session{
		ID:        in.ID,
		Code:      in.Code,
		Title:     in.Title,
		Owner:     in.Owner,
		IsPublic:  in.IsPublic,
		CreatedAt: in.CreatedAt,
	}
	if in.PublisherConnection != nil {
		s.PublisherConnection = *in.PublisherConnection
	}
	return nil
}

// Connection is the gateway's view of one websocket peer.
type Connection struct {
	ID           string
	RemoteAddr   string
	ConnectedAt  time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

// NewConnection creates connection state with a unique ID.
func NewConnection(id, remoteAddr string) *Connection {
	now := time.Now()
	return &Connection{
		ID:           id,
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// UpdateActivity updates the last active timestamp.
func (c *Connection) UpdateActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastActiveAt = time.Now()
}

// LastActive returns the last time a frame was read from the peer.
func (c *Connection) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastActiveAt
}
