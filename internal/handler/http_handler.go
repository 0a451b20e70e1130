package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/internal/service"
	"github.com/weiawesome/peercast/pkg/log"
	"github.com/weiawesome/peercast/pkg/response"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 100
)

// Handler handles HTTP requests for sessions.
type Handler struct {
	sessionService service.SessionService
}

// NewHandler creates a new HTTP handler.
func NewHandler(sessionService service.SessionService) *Handler {
	return &Handler{sessionService: sessionService}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.CreateSession)
			sessions.GET("", h.ListSessions)
			sessions.GET("/code/:code", h.GetSessionByCode)
			sessions.GET("/:id", h.GetSession)
			sessions.GET("/:id/events", h.GetSessionEvents)
			sessions.DELETE("/:id", h.CloseSession)
		}
	}
}

// Health reports liveness plus live counts.
func (h *Handler) Health(c *gin.Context) {
	st := h.sessionService.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"sessions":    st.Sessions,
		"connections": st.Connections,
	})
}

// CreateSession creates a new session. An empty body is allowed.
func (h *Handler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			l.Warn().Err(err).Msg("failed to bind create session request")
			response.BadRequest(c, err.Error())
			return
		}
	}

	resp, err := h.sessionService.Create(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Msg("failed to create session")
		response.InternalError(c, "failed to create session")
		return
	}

	c.Set(log.FieldSessionID, resp.Session.ID)
	response.Created(c, resp)
}

// GetSessionByCode resolves a join code, ignoring case.
func (h *Handler) GetSessionByCode(c *gin.Context) {
	ctx := c.Request.Context()

	sess, err := h.sessionService.GetByCode(ctx, c.Param("code"))
	if err != nil {
		h.lookupError(c, err)
		return
	}

	c.Set(log.FieldSessionID, sess.ID)
	response.Success(c, sess)
}

// GetSession retrieves a session by id.
func (h *Handler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	sess, err := h.sessionService.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.lookupError(c, err)
		return
	}

	c.Set(log.FieldSessionID, sess.ID)
	response.Success(c, sess)
}

// ListSessions lists public sessions, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	response.Success(c, h.sessionService.ListPublic(c.Request.Context()))
}

// CloseSession destroys a session. The caller must present the session's
// publish token as a bearer token.
func (h *Handler) CloseSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	sessionID := c.Param("id")
	c.Set(log.FieldSessionID, sessionID)

	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		response.Unauthorized(c, "missing publish token")
		return
	}

	sess, err := h.sessionService.Close(ctx, sessionID, token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, service.ErrInvalidToken):
			response.Unauthorized(c, "invalid publish token")
		default:
			l.Error().Err(err).Msg("failed to close session")
			response.InternalError(c, "failed to close session")
		}
		return
	}

	response.Success(c, sess)
}

// GetSessionEvents returns the session's lifecycle journal.
func (h *Handler) GetSessionEvents(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	sessionID := c.Param("id")
	c.Set(log.FieldSessionID, sessionID)

	limit := defaultEventsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventsLimit)
	}

	events, err := h.sessionService.Events(ctx, sessionID, limit)
	if err != nil {
		if errors.Is(err, service.ErrJournalDisabled) {
			response.ServiceUnavailable(c, "session journal is disabled")
			return
		}
		l.Error().Err(err).Msg("failed to list session events")
		response.InternalError(c, "failed to list session events")
		return
	}

	response.Success(c, events)
}

func (h *Handler) lookupError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	l := log.Ctx(c.Request.Context())
	l.Error().Err(err).Msg("failed to look up session")
	response.InternalError(c, "failed to look up session")
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
