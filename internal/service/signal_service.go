package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/peercast/internal/audit"
	"github.com/weiawesome/peercast/internal/config"
	"github.com/weiawesome/peercast/internal/directory"
	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/internal/registry"
	"github.com/weiawesome/peercast/internal/relay"
	"github.com/weiawesome/peercast/pkg/jwt"
	"github.com/weiawesome/peercast/pkg/log"
	"github.com/weiawesome/peercast/pkg/pubsub"
)

const revocationSweepInterval = 10 * time.Minute

type signalService struct {
	registry  *registry.Registry
	directory *directory.Directory
	relay     *relay.Engine
	tokens    *jwt.Manager
	events    EventEmitter
	control   pubsub.Subscriber
	cfg       config.SignalingConfig

	// transition serializes compound state changes across the registry and
	// the directory.
	transition sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSignalService creates the lifecycle controller. control may be nil when
// no pubsub backend is configured.
func NewSignalService(
	reg *registry.Registry,
	dir *directory.Directory,
	engine *relay.Engine,
	tokens *jwt.Manager,
	events EventEmitter,
	control pubsub.Subscriber,
	cfg config.SignalingConfig,
) SignalService {
	return &signalService{
		registry:  reg,
		directory: dir,
		relay:     engine,
		tokens:    tokens,
		events:    events,
		control:   control,
		cfg:       cfg,
	}
}

func (s *signalService) HandlePublisherJoin(ctx context.Context, connID, sessionID, token string) error {
	l := log.Ctx(ctx)

	if sessionID == "" {
		s.relay.NotifyError(connID, domain.ErrCodeBadRequest, "session_id is required")
		return ErrInvalidRequest
	}

	if !s.registry.Exists(sessionID) {
		s.relay.NotifyNotFound(connID, sessionID, domain.ReasonSessionNotFound)
		return ErrSessionNotFound
	}

	if s.cfg.RequirePublishToken {
		if _, err := s.tokens.VerifyPublishToken(token, sessionID); err != nil {
			audit.LogWithDetail(ctx, audit.ActionTokenRejected, sessionID, err.Error(), "publisher token rejected")
			s.relay.NotifyError(connID, domain.ErrCodeUnauthorized, "invalid publish token")
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	s.transition.Lock()
	before, err := s.registry.LookupByID(sessionID)
	if err != nil {
		s.transition.Unlock()
		s.relay.NotifyNotFound(connID, sessionID, domain.ReasonSessionNotFound)
		return ErrSessionNotFound
	}

	previous, err := s.directory.BindPublisher(connID, sessionID, s.cfg.PublisherTakeover)
	if err != nil {
		s.transition.Unlock()
		switch {
		case errors.Is(err, directory.ErrAlreadyLive):
			s.relay.NotifyError(connID, domain.ErrCodeAlreadyLive, "session already has a publisher")
			return ErrAlreadyLive
		case errors.Is(err, directory.ErrSessionNotFound):
			s.relay.NotifyNotFound(connID, sessionID, domain.ReasonSessionNotFound)
			return ErrSessionNotFound
		default:
			return fmt.Errorf("bind publisher: %w", err)
		}
	}

	if previous != "" {
		if err := s.registry.DetachPublisher(sessionID, previous); err != nil {
			s.transition.Unlock()
			return fmt.Errorf("detach replaced publisher: %w", err)
		}
	}
	live, err := s.registry.AttachPublisher(sessionID, connID)
	if err != nil {
		s.transition.Unlock()
		return fmt.Errorf("attach publisher: %w", err)
	}
	members := s.directory.Members(sessionID)
	s.transition.Unlock()

	rejoin := before.PublisherConnection == connID

	if previous != "" {
		s.relay.NotifyError(previous, domain.ErrCodePublisherReplaced, "another connection took over this session")
		s.emit(domain.EventPublisherReplaced, live, previous, "")
		l.Info().Str(log.FieldSessionID, sessionID).Str(log.FieldConnectionID, connID).
			Str("previous_publisher", previous).Msg("publisher replaced")
	}

	s.relay.NotifyConnections(members, domain.NewSessionUpdatedMessage(live))

	if !rejoin {
		s.emit(domain.EventSessionLive, live, connID, "")
		audit.Log(ctx, audit.ActionPublisherJoin, sessionID, "session is live")
	}
	l.Info().Str(log.FieldSessionID, sessionID).Str(log.FieldConnectionID, connID).
		Str("from_state", string(before.State())).Int("members", len(members)).Bool("rejoin", rejoin).Msg("publisher joined")
	return nil
}

func (s *signalService) HandleViewerJoin(ctx context.Context, connID, sessionID string) error {
	l := log.Ctx(ctx)

	if sessionID == "" {
		s.relay.NotifyError(connID, domain.ErrCodeBadRequest, "session_id is required")
		return ErrInvalidRequest
	}

	s.transition.Lock()
	sess, err := s.registry.LookupByID(sessionID)
	if err == nil {
		err = s.directory.BindViewer(connID, sessionID)
	}
	if err != nil {
		s.transition.Unlock()
		s.relay.NotifyNotFound(connID, sessionID, domain.ReasonSessionNotFound)
		return ErrSessionNotFound
	}
	publisher, live := s.directory.PublisherOf(sessionID)
	role := s.directory.RoleOf(connID, sessionID)
	s.transition.Unlock()

	if !live {
		s.relay.NotifyViewerNoPublisher(connID, sessionID)
		l.Debug().Str(log.FieldSessionID, sessionID).Str(log.FieldConnectionID, connID).Msg("viewer joined session without publisher")
		return nil
	}
	// The publisher watching its own session needs no negotiation.
	if role == directory.RolePublisher {
		return nil
	}

	s.relay.NotifyViewerWantsConnection(publisher, connID)
	s.emit(domain.EventViewerJoined, sess, connID, "")
	l.Info().Str(log.FieldSessionID, sessionID).Str(log.FieldConnectionID, connID).
		Str(log.FieldPeerID, publisher).Msg("viewer joined")
	return nil
}

func (s *signalService) HandleRelay(ctx context.Context, connID, to string, payload json.RawMessage) error {
	if to == "" {
		return nil
	}
	if !s.relay.Relay(connID, to, payload) {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldConnectionID, connID).Str(log.FieldPeerID, to).Msg("relay target unavailable")
	}
	return nil
}

// teardown is a destroyed session and the connections to tell about it.
type teardown struct {
	session    domain.Session
	recipients []string
}

func (s *signalService) HandleDisconnect(ctx context.Context, connID string) error {
	l := log.Ctx(ctx)

	s.transition.Lock()
	var torn []teardown
	for _, sessionID := range s.directory.SessionsPublishedBy(connID) {
		members := s.directory.DropSession(sessionID)
		sess, ok := s.registry.Destroy(sessionID)
		if !ok {
			continue
		}
		torn = append(torn, teardown{session: sess.WithoutPublisher(), recipients: without(members, connID)})
	}
	removed := s.directory.Unbind(connID)
	s.transition.Unlock()

	for _, t := range torn {
		s.finishTeardown(ctx, t, connID, domain.ReasonPublisherDisconnect)
	}

	l.Info().Str(log.FieldConnectionID, connID).
		Int("bindings", len(removed)+len(torn)).Int("destroyed", len(torn)).
		Msg("connection disconnected")
	return nil
}

func (s *signalService) CloseSession(ctx context.Context, sessionID, reason string) (domain.Session, error) {
	s.transition.Lock()
	members := s.directory.DropSession(sessionID)
	sess, ok := s.registry.Destroy(sessionID)
	s.transition.Unlock()

	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}

	t := teardown{session: sess.WithoutPublisher(), recipients: members}
	s.finishTeardown(ctx, t, sess.PublisherConnection, reason)
	return t.session, nil
}

// finishTeardown runs after the session left the registry and the directory.
func (s *signalService) finishTeardown(ctx context.Context, t teardown, connID, reason string) {
	n := s.relay.NotifyConnections(t.recipients, domain.NewSessionUpdatedMessage(t.session))
	if s.tokens != nil {
		s.tokens.RevokeSession(t.session.ID)
	}

	s.events.Emit(&domain.LifecycleEvent{
		Type:         domain.EventSessionDestroyed,
		SessionID:    t.session.ID,
		Code:         t.session.Code,
		ConnectionID: connID,
		Reason:       reason,
		Recipients:   n,
	})
	audit.LogWithDetail(ctx, audit.ActionDestroySession, t.session.ID, reason, "session destroyed")

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldSessionID, t.session.ID).
		Str(log.FieldSessionCode, t.session.Code).
		Str(log.FieldReason, reason).
		Int("notified", n).
		Msg("session destroyed")
}

func (s *signalService) emit(eventType string, sess domain.Session, connID, reason string) {
	s.events.Emit(&domain.LifecycleEvent{
		Type:         eventType,
		SessionID:    sess.ID,
		Code:         sess.Code,
		ConnectionID: connID,
		Reason:       reason,
	})
}

func (s *signalService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	l := log.L()

	if s.control != nil {
		eventCh, err := s.control.SubscribePattern(ctx, pubsub.ControlToSignalPattern())
		if err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to control events: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleControlEvents(ctx, eventCh)
		}()
		l.Info().Str("pattern", pubsub.ControlToSignalPattern()).Msg("subscribed to control events")
	}

	if s.tokens != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sweepRevocations(ctx)
		}()
	}

	l.Info().Msg("signal service started")
	return nil
}

func (s *signalService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *signalService) handleControlEvents(ctx context.Context, eventCh <-chan *pubsub.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			s.processControlEvent(ctx, event)
		}
	}
}

func (s *signalService) processControlEvent(ctx context.Context, event *pubsub.Event) {
	l := log.L().With().Str(log.FieldEventType, event.Type).Logger()

	switch event.Type {
	case pubsub.EventCloseSession:
		var payload pubsub.CloseSessionPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			l.Warn().Err(err).Msg("failed to unmarshal close_session")
			return
		}
		sessionID := payload.SessionID
		if sessionID == "" {
			sessionID = event.SessionID
		}
		if _, err := s.CloseSession(ctx, sessionID, domain.ReasonControl); err != nil {
			l.Debug().Err(err).Str(log.FieldSessionID, sessionID).Msg("close_session ignored")
			return
		}
		l.Info().Str(log.FieldSessionID, sessionID).Str(log.FieldReason, payload.Reason).Msg("session closed by control event")

	default:
		l.Debug().Msg("ignoring unknown control event")
	}
}

func (s *signalService) sweepRevocations(ctx context.Context) {
	ticker := time.NewTicker(revocationSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.tokens.CleanupExpiredRevocations(); n > 0 {
				l := log.L()
				l.Debug().Int("removed", n).Msg("expired token revocations removed")
			}
		}
	}
}

func without(conns []string, drop string) []string {
	out := conns[:0:0]
	for _, c := range conns {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}
