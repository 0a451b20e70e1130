package directory

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyLive     = errors.New("session already has a publisher")
)

// Role is a connection's role within one session.
type Role string

const (
	RoleNone      Role = "none"
	RolePublisher Role = "publisher"
	RoleViewer    Role = "viewer"
)

// Binding ties a connection to a session in a role.
type Binding struct {
	SessionID string
	Role      Role
}

// SessionChecker tells the directory which sessions exist.
type SessionChecker interface {
	Exists(sessionID string) bool
}

// Directory maps connections to the sessions they participate in. It holds
// session ids only; the registry owns the sessions themselves.
type Directory struct {
	mu         sync.RWMutex
	sessions   SessionChecker
	bindings   map[string]map[string]Role     // conn -> session -> role
	publishers map[string]string              // session -> conn
	members    map[string]map[string]struct{} // session -> conns
}

// New creates an empty directory backed by the given session checker.
func New(sessions SessionChecker) *Directory {
	return &Directory{
		sessions:   sessions,
		bindings:   make(map[string]map[string]Role),
		publishers: make(map[string]string),
		members:    make(map[string]map[string]struct{}),
	}
}

// BindPublisher makes conn the publisher of sessionID. When another
// connection already publishes, the call fails with ErrAlreadyLive unless
// takeover is set, in which case the previous publisher loses its binding to
// the session and its id is returned.
func (d *Directory) BindPublisher(conn, sessionID string, takeover bool) (previous string, err error) {
	if !d.sessions.Exists(sessionID) {
		return "", ErrSessionNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.publishers[sessionID]; ok && current != conn {
		if !takeover {
			return "", ErrAlreadyLive
		}
		d.unbindOne(current, sessionID)
		previous = current
	}

	d.bind(conn, sessionID, RolePublisher)
	d.publishers[sessionID] = conn
	return previous, nil
}

// BindViewer adds conn to sessionID as a viewer. A publisher that also joins
// as viewer keeps its publisher role.
func (d *Directory) BindViewer(conn, sessionID string) error {
	if !d.sessions.Exists(sessionID) {
		return ErrSessionNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bindings[conn][sessionID] == RolePublisher {
		return nil
	}
	d.bind(conn, sessionID, RoleViewer)
	return nil
}

// Unbind removes every binding of conn and returns what was removed.
// Unbinding an unknown connection returns nil.
func (d *Directory) Unbind(conn string) []Binding {
	d.mu.Lock()
	defer d.mu.Unlock()

	sessions, ok := d.bindings[conn]
	if !ok {
		return nil
	}

	out := make([]Binding, 0, len(sessions))
	for sessionID, role := range sessions {
		out = append(out, Binding{SessionID: sessionID, Role: role})
		d.unbindOne(conn, sessionID)
	}
	sortBindings(out)
	return out
}

// PublisherOf returns the publisher of sessionID, if any.
func (d *Directory) PublisherOf(sessionID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, ok := d.publishers[sessionID]
	return conn, ok
}

// SessionsPublishedBy lists the sessions conn currently publishes.
func (d *Directory) SessionsPublishedBy(conn string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for sessionID, role := range d.bindings[conn] {
		if role == RolePublisher {
			out = append(out, sessionID)
		}
	}
	sort.Strings(out)
	return out
}

// Members lists every connection bound to sessionID, publisher included.
func (d *Directory) Members(sessionID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.membersLocked(sessionID)
}

// DropSession removes every binding to sessionID and returns the former members.
func (d *Directory) DropSession(sessionID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.membersLocked(sessionID)
	for _, conn := range out {
		d.unbindOne(conn, sessionID)
	}
	delete(d.publishers, sessionID)
	delete(d.members, sessionID)
	return out
}

// RoleOf returns conn's role in sessionID.
func (d *Directory) RoleOf(conn, sessionID string) Role {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if role, ok := d.bindings[conn][sessionID]; ok {
		return role
	}
	return RoleNone
}

// Connections returns the number of connections with at least one binding.
func (d *Directory) Connections() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.bindings)
}

// bind must be called with d.mu held.
func (d *Directory) bind(conn, sessionID string, role Role) {
	sessions, ok := d.bindings[conn]
	if !ok {
		sessions = make(map[string]Role)
		d.bindings[conn] = sessions
	}
	sessions[sessionID] = role

	members, ok := d.members[sessionID]
	if !ok {
		members = make(map[string]struct{})
		d.members[sessionID] = members
	}
	members[conn] = struct{}{}
}

// unbindOne must be called with d.mu held.
func (d *Directory) unbindOne(conn, sessionID string) {
	if sessions, ok := d.bindings[conn]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(d.bindings, conn)
		}
	}
	if members, ok := d.members[sessionID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(d.members, sessionID)
		}
	}
	if d.publishers[sessionID] == conn {
		delete(d.publishers, sessionID)
	}
}

// membersLocked must be called with d.mu held.
func (d *Directory) membersLocked(sessionID string) []string {
	members := d.members[sessionID]
	out := make([]string, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	sort.Strings(out)
	return out
}

func sortBindings(b []Binding) {
	sort.Slice(b, func(i, j int) bool { return b[i].SessionID < b[j].SessionID })
}
