package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weiawesome/peercast/internal/domain"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique join code")
	ErrPublisherMismatch  = errors.New("session has a different publisher")
)

const (
	// After this many consecutive collisions the code grows by one character.
	collisionsPerGrowth = 8
	maxCodeAttempts     = 64
)

// Registry is the authoritative set of active sessions. Every operation is
// atomic with respect to the others; callers only ever see snapshots.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Session
	byCode map[string]string

	codes      CodeGenerator
	codeLength int
	newID      func() string
	now        func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithCodeGenerator replaces the nanoid code generator.
func WithCodeGenerator(g CodeGenerator) Option {
	return func(r *Registry) { r.codes = g }
}

// WithCodeLength sets the initial join-code length.
func WithCodeLength(n int) Option {
	return func(r *Registry) {
		if n > 0 && n <= maxCodeLength {
			r.codeLength = n
		}
	}
}

// WithIDGenerator replaces uuid session ids.
func WithIDGenerator(f func() string) Option {
	return func(r *Registry) { r.newID = f }
}

// WithClock replaces time.Now.
func WithClock(f func() time.Time) Option {
	return func(r *Registry) { r.now = f }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	gen, _ := NewNanoIDCodeGenerator(DefaultCodeAlphabet)
	r := &Registry{
		byID:       make(map[string]*domain.Session),
		byCode:     make(map[string]string),
		codes:      gen,
		codeLength: DefaultCodeLength,
		newID:      func() string { return uuid.New().String() },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new session in the Created state.
func (r *Registry) Create(title string, isPublic bool, owner string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.byID[id]; taken; _, taken = r.byID[id] {
		id = r.newID()
	}

	code, err := r.allocateCode()
	if err != nil {
		return domain.Session{}, err
	}

	s := &domain.Session{
		ID:        id,
		Code:      code,
		Title:     title,
		Owner:     owner,
		IsPublic:  isPublic,
		CreatedAt: r.now().UTC(),
	}
	r.byID[id] = s
	r.byCode[code] = id

	return *s, nil
}

// allocateCode must be called with r.mu held.
func (r *Registry) allocateCode() (string, error) {
	length := r.codeLength
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		candidate, err := r.codes.Generate(length)
		if err != nil {
			return "", err
		}
		candidate = NormalizeCode(candidate)
		if _, taken := r.byCode[candidate]; !taken && candidate != "" {
			return candidate, nil
		}
		if attempt%collisionsPerGrowth == 0 && length < maxCodeLength {
			length++
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, maxCodeAttempts)
}

// LookupByCode finds a session by join code, ignoring case and surrounding space.
func (r *Registry) LookupByCode(code string) (domain.Session, error) {
	code = NormalizeCode(code)
	if v, ok := r.codes.(interface{ Validate(string) bool }); ok && !v.Validate(code) {
		return domain.Session{}, ErrSessionNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	return *r.byID[id], nil
}

// LookupByID finds a session by id.
func (r *Registry) LookupByID(id string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	return *s, nil
}

// Exists reports whether the session is active.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Destroy removes the session and frees its code. Destroying an absent
// session is a no-op that reports false.
func (r *Registry) Destroy(id string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return domain.Session{}, false
	}
	delete(r.byID, id)
	if r.byCode[s.Code] == id {
		delete(r.byCode, s.Code)
	}
	return *s, true
}

// AttachPublisher records conn as the session's publisher. A session that
// already has another publisher must be detached from it first.
func (r *Registry) AttachPublisher(id, conn string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	if s.PublisherConnection != "" && s.PublisherConnection != conn {
		return domain.Session{}, ErrPublisherMismatch
	}
	s.PublisherConnection = conn
	return *s, nil
}

// DetachPublisher clears the publisher if it is still conn.
func (r *Registry) DetachPublisher(id, conn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.PublisherConnection != conn {
		return ErrPublisherMismatch
	}
	s.PublisherConnection = ""
	return nil
}

// ListPublic returns public sessions, newest first.
func (r *Registry) ListPublic() []domain.Session {
	r.mu.RLock()
	out := make([]domain.Session, 0, len(r.byID))
	for _, s := range r.byID {
		if s.IsPublic {
			out = append(out, *s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
