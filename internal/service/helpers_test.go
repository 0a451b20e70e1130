package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/peercast/internal/config"
	"github.com/weiawesome/peercast/internal/directory"
	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/internal/registry"
	"github.com/weiawesome/peercast/internal/relay"
	"github.com/weiawesome/peercast/pkg/jwt"
	"github.com/weiawesome/peercast/pkg/pubsub"
)

// inbox records every message sent to each connection.
type inbox struct {
	mu      sync.Mutex
	msgs    map[string][]interface{}
	offline map[string]bool
}

func newInbox() *inbox {
	return &inbox{msgs: make(map[string][]interface{}), offline: make(map[string]bool)}
}

func (b *inbox) SendToClient(id string, msg interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline[id] {
		return errors.New("offline")
	}
	b.msgs[id] = append(b.msgs[id], msg)
	return nil
}

func (b *inbox) SendFrame(id string, frame []byte) error {
	return b.SendToClient(id, frame)
}

func (b *inbox) SendToClients(ids []string, msg interface{}) (int, error) {
	n := 0
	for _, id := range ids {
		if b.SendToClient(id, msg) == nil {
			n++
		}
	}
	return n, nil
}

func (b *inbox) of(id string) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]interface{}(nil), b.msgs[id]...)
}

func (b *inbox) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = make(map[string][]interface{})
}

// relays decodes the raw relay frames queued for id.
func (b *inbox) relays(t *testing.T, id string) []domain.RelayedMessage {
	t.Helper()
	var out []domain.RelayedMessage
	for _, m := range b.of(id) {
		frame, ok := m.([]byte)
		if !ok {
			continue
		}
		var r domain.RelayedMessage
		require.NoError(t, json.Unmarshal(frame, &r))
		out = append(out, r)
	}
	return out
}

func (b *inbox) sessionUpdates(id string) []domain.Session {
	var out []domain.Session
	for _, m := range b.of(id) {
		if u, ok := m.(*domain.SessionUpdatedMessage); ok {
			out = append(out, u.Session)
		}
	}
	return out
}

func (b *inbox) errorCodes(id string) []string {
	var out []string
	for _, m := range b.of(id) {
		if e, ok := m.(*domain.ErrorMessage); ok {
			out = append(out, e.Code)
		}
	}
	return out
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*domain.LifecycleEvent
}

func (r *recordingEmitter) Emit(e *domain.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	registry  *registry.Registry
	directory *directory.Directory
	inbox     *inbox
	events    *recordingEmitter
	tokens    *jwt.Manager
	signal    SignalService
	sessions  SessionService
}

func newHarness(t *testing.T, cfg config.SignalingConfig, control pubsub.Subscriber) *harness {
	t.Helper()

	reg := registry.New()
	dir := directory.New(reg)
	box := newInbox()
	emitter := &recordingEmitter{}
	tokens, err := jwt.NewManager(time.Hour, "peercast-test")
	require.NoError(t, err)

	engine := relay.NewEngine(box, dir)
	signal := NewSignalService(reg, dir, engine, tokens, emitter, control, cfg)
	sessions := NewSessionService(reg, signal, tokens, nil, emitter, nil, config.SessionsConfig{MaxTitleLength: 200, ListingEnabled: true})

	return &harness{
		registry:  reg,
		directory: dir,
		inbox:     box,
		events:    emitter,
		tokens:    tokens,
		signal:    signal,
		sessions:  sessions,
	}
}

func (h *harness) create(t *testing.T) *domain.CreateSessionResponse {
	t.Helper()
	resp, err := h.sessions.Create(context.Background(), &domain.CreateSessionRequest{Title: "Demo"})
	require.NoError(t, err)
	return resp
}
