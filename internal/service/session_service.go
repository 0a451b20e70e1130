package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/weiawesome/peercast/internal/audit"
	"github.com/weiawesome/peercast/internal/config"
	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/internal/registry"
	"github.com/weiawesome/peercast/internal/repository"
	"github.com/weiawesome/peercast/pkg/jwt"
	"github.com/weiawesome/peercast/pkg/log"
)

type sessionService struct {
	registry    *registry.Registry
	signal      SignalService
	tokens      *jwt.Manager
	journal     repository.JournalRepository
	events      EventEmitter
	connections ConnectionCounter
	cfg         config.SessionsConfig
}

// NewSessionService creates the HTTP-facing session service. journal may be
// nil when the lifecycle journal is disabled.
func NewSessionService(
	reg *registry.Registry,
	signal SignalService,
	tokens *jwt.Manager,
	journal repository.JournalRepository,
	events EventEmitter,
	connections ConnectionCounter,
	cfg config.SessionsConfig,
) SessionService {
	return &sessionService{
		registry:    reg,
		signal:      signal,
		tokens:      tokens,
		journal:     journal,
		events:      events,
		connections: connections,
		cfg:         cfg,
	}
}

func (s *sessionService) Create(ctx context.Context, req *domain.CreateSessionRequest) (*domain.CreateSessionResponse, error) {
	l := log.Ctx(ctx)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	if s.cfg.MaxTitleLength > 0 && utf8.RuneCountInString(title) > s.cfg.MaxTitleLength {
		return nil, fmt.Errorf("%w: title longer than %d characters", ErrInvalidRequest, s.cfg.MaxTitleLength)
	}

	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = domain.DefaultSessionOwner
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	sess, err := s.registry.Create(title, isPublic, owner)
	if err != nil {
		l.Error().Err(err).Msg("failed to create session")
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, exp, err := s.tokens.IssuePublishToken(sess.ID, owner)
	if err != nil {
		s.registry.Destroy(sess.ID)
		l.Error().Err(err).Str(log.FieldSessionID, sess.ID).Msg("failed to issue publish token")
		return nil, fmt.Errorf("issue publish token: %w", err)
	}

	s.events.Emit(&domain.LifecycleEvent{
		Type:      domain.EventSessionCreated,
		SessionID: sess.ID,
		Code:      sess.Code,
	})
	audit.LogWithDetail(ctx, audit.ActionCreateSession, sess.ID, sess.Code, "session created")

	return &domain.CreateSessionResponse{
		Session:        sess,
		PublishToken:   token,
		TokenExpiresAt: exp,
	}, nil
}

func (s *sessionService) GetByCode(ctx context.Context, code string) (domain.Session, error) {
	sess, err := s.registry.LookupByCode(code)
	if errors.Is(err, registry.ErrSessionNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	return sess, err
}

func (s *sessionService) GetByID(ctx context.Context, id string) (domain.Session, error) {
	sess, err := s.registry.LookupByID(id)
	if errors.Is(err, registry.ErrSessionNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	return sess, err
}

func (s *sessionService) ListPublic(ctx context.Context) []domain.Session {
	if !s.cfg.ListingEnabled {
		return []domain.Session{}
	}
	return s.registry.ListPublic()
}

func (s *sessionService) Close(ctx context.Context, id, token string) (domain.Session, error) {
	if !s.registry.Exists(id) {
		return domain.Session{}, ErrSessionNotFound
	}
	if _, err := s.tokens.VerifyPublishToken(token, id); err != nil {
		audit.LogWithDetail(ctx, audit.ActionTokenRejected, id, err.Error(), "close rejected")
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sess, err := s.signal.CloseSession(ctx, id, domain.ReasonClosed)
	if err != nil {
		return domain.Session{}, err
	}
	audit.Log(ctx, audit.ActionCloseSession, id, "session closed by owner")
	return sess, nil
}

func (s *sessionService) Events(ctx context.Context, id string, limit int) ([]domain.LifecycleEvent, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.ListBySession(ctx, id, limit)
}

func (s *sessionService) Stats() Stats {
	st := Stats{Sessions: s.registry.Count()}
	if s.connections != nil {
		st.Connections = s.connections.ClientCount()
	}
	return st
}
