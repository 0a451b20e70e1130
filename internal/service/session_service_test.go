package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/peercast/internal/config"
	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/internal/repository"
	"github.com/weiawesome/peercast/pkg/database"
)

type fixedCounter int

func (c fixedCounter) ClientCount() int { return int(c) }

func TestCreateAppliesDefaults(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)

	resp, err := h.sessions.Create(context.Background(), &domain.CreateSessionRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultSessionTitle, resp.Session.Title)
	assert.Equal(t, domain.DefaultSessionOwner, resp.Session.Owner)
	assert.True(t, resp.Session.IsPublic)
	assert.False(t, resp.Session.IsLive())
	assert.Len(t, resp.Session.Code, 6)
	assert.NotEmpty(t, resp.PublishToken)
	assert.Greater(t, resp.TokenExpiresAt, time.Now().Unix())
	assert.Equal(t, []string{domain.EventSessionCreated}, h.events.types())

	claims, err := h.tokens.VerifyPublishToken(resp.PublishToken, resp.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSessionOwner, claims.Owner)
}

func TestCreateHonorsFields(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)
	private := false

	resp, err := h.sessions.Create(context.Background(), &domain.CreateSessionRequest{
		Title:    "  Friday standup ",
		IsPublic: &private,
		Owner:    "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, "Friday standup", resp.Session.Title)
	assert.Equal(t, "alice", resp.Session.Owner)
	assert.False(t, resp.Session.IsPublic)
}

func TestCreateRejectsLongTitle(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)

	_, err := h.sessions.Create(context.Background(), &domain.CreateSessionRequest{Title: strings.Repeat("x", 201)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, h.registry.Count())
	assert.Empty(t, h.events.types())
}

func TestLookups(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)
	ctx := context.Background()
	created := h.create(t)

	byCode, err := h.sessions.GetByCode(ctx, strings.ToLower(created.Session.Code))
	require.NoError(t, err)
	assert.Equal(t, created.Session.ID, byCode.ID)

	byID, err := h.sessions.GetByID(ctx, created.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Session.Code, byID.Code)

	_, err = h.sessions.GetByCode(ctx, "ZZZZZZZZ")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.sessions.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListPublic(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)
	ctx := context.Background()
	private := false

	public := h.create(t)
	_, err := h.sessions.Create(ctx, &domain.CreateSessionRequest{IsPublic: &private})
	require.NoError(t, err)

	list := h.sessions.ListPublic(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, public.Session.ID, list[0].ID)

	hidden := NewSessionService(h.registry, h.signal, h.tokens, nil, h.events, nil, config.SessionsConfig{})
	list = hidden.ListPublic(ctx)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestCloseRequiresPublishToken(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)
	ctx := context.Background()
	a := h.create(t)
	b := h.create(t)

	_, err := h.sessions.Close(ctx, a.Session.ID, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = h.sessions.Close(ctx, a.Session.ID, b.PublishToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.True(t, h.registry.Exists(a.Session.ID))

	_, err = h.sessions.Close(ctx, "missing", a.PublishToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCloseDestroysAndNotifies(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)
	ctx := context.Background()
	created := h.create(t)
	id := created.Session.ID

	require.NoError(t, h.signal.HandlePublisherJoin(ctx, "pub", id, ""))
	require.NoError(t, h.signal.HandleViewerJoin(ctx, "v1", id))
	h.inbox.reset()

	closed, err := h.sessions.Close(ctx, id, created.PublishToken)
	require.NoError(t, err)
	assert.Equal(t, id, closed.ID)
	assert.False(t, h.registry.Exists(id))

	updates := h.inbox.sessionUpdates("v1")
	require.Len(t, updates, 1)
	assert.False(t, updates[0].IsLive())

	// the token dies with the session
	_, err = h.tokens.VerifyPublishToken(created.PublishToken, id)
	assert.Error(t, err)

	_, err = h.sessions.Close(ctx, id, created.PublishToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEventsWithoutJournal(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)

	_, err := h.sessions.Events(context.Background(), "any", 10)
	assert.ErrorIs(t, err, ErrJournalDisabled)
}

func TestEventsFromJournal(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)
	ctx := context.Background()

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	journal, err := repository.NewGormJournalRepository(db)
	require.NoError(t, err)

	svc := NewSessionService(h.registry, h.signal, h.tokens, journal, h.events, nil, config.SessionsConfig{})
	require.NoError(t, journal.Append(ctx, &domain.LifecycleEvent{
		Type:       domain.EventSessionCreated,
		SessionID:  "s1",
		Code:       "ABC123",
		OccurredAt: time.Now(),
	}))

	got, err := svc.Events(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventSessionCreated, got[0].Type)
}

func TestStats(t *testing.T) {
	h := newHarness(t, config.SignalingConfig{}, nil)
	h.create(t)
	h.create(t)

	assert.Equal(t, Stats{Sessions: 2}, h.sessions.Stats())

	svc := NewSessionService(h.registry, h.signal, h.tokens, nil, h.events, fixedCounter(3), config.SessionsConfig{})
	assert.Equal(t, Stats{Sessions: 2, Connections: 3}, svc.Stats())
}
