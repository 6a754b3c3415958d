// Package httpapi exposes the support chat service over REST.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/supportflow-dev/supportflow/pkg/chat"
)

// Handler handles HTTP requests for the support API.
type Handler struct {
	svc *chat.Service
	log zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *chat.Service, log zerolog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log.With().Str("component", "httpapi").Logger(),
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/support")

	api.POST("/chat/user", h.SendUserMessage)
	api.POST("/chat/admin", h.SendAdminMessage)
	api.GET("/chat/history/:sessionId", h.GetHistory)

	api.GET("/sessions/active", h.GetActiveSessions)
	api.GET("/sessions/user/:userId", h.GetUserSessions)
	api.POST("/sessions/:sessionId/close", h.CloseSession)
	api.POST("/sessions/:sessionId/request-admin", h.RequestAdmin)
	api.POST("/sessions/:sessionId/take-over", h.TakeOver)

	api.GET("/ai/status", h.AIStatus)

	e.GET("/health", h.Health)
}

// messageRequest is the inbound payload for user and admin messages.
type messageRequest struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

// SendUserMessage handles POST /api/support/chat/user.
func (h *Handler) SendUserMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	msg, err := h.svc.SubmitUserMessage(c.Request().Context(), req.SessionID, req.UserID, req.Username, req.Message)
	if err != nil {
		return h.mapError(c, err, "submit user message")
	}
	return c.JSON(http.StatusOK, msg)
}

// SendAdminMessage handles POST /api/support/chat/admin.
func (h *Handler) SendAdminMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	msg, err := h.svc.SubmitAdminMessage(c.Request().Context(), req.SessionID, req.UserID, req.Username, req.Message)
	if err != nil {
		return h.mapError(c, err, "submit admin message")
	}
	return c.JSON(http.StatusOK, msg)
}

// GetHistory handles GET /api/support/chat/history/:sessionId.
func (h *Handler) GetHistory(c echo.Context) error {
	msgs, err := h.svc.GetHistory(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return h.mapError(c, err, "get history")
	}
	return c.JSON(http.StatusOK, msgs)
}

// GetActiveSessions handles GET /api/support/sessions/active.
func (h *Handler) GetActiveSessions(c echo.Context) error {
	sessions, err := h.svc.GetActiveSessions(c.Request().Context())
	if err != nil {
		return h.mapError(c, err, "get active sessions")
	}
	return c.JSON(http.StatusOK, sessions)
}

// GetUserSessions handles GET /api/support/sessions/user/:userId.
func (h *Handler) GetUserSessions(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid user id"))
	}

	sessions, err := h.svc.GetUserSessions(c.Request().Context(), userID)
	if err != nil {
		return h.mapError(c, err, "get user sessions")
	}
	return c.JSON(http.StatusOK, sessions)
}

// CloseSession handles POST /api/support/sessions/:sessionId/close.
func (h *Handler) CloseSession(c echo.Context) error {
	if err := h.svc.CloseSession(c.Request().Context(), c.Param("sessionId")); err != nil {
		return h.mapError(c, err, "close session")
	}
	return c.NoContent(http.StatusOK)
}

// RequestAdmin handles POST /api/support/sessions/:sessionId/request-admin.
func (h *Handler) RequestAdmin(c echo.Context) error {
	if err := h.svc.RequestAdminSupport(c.Request().Context(), c.Param("sessionId")); err != nil {
		return h.mapError(c, err, "request admin support")
	}
	return c.NoContent(http.StatusOK)
}

// TakeOver handles POST /api/support/sessions/:sessionId/take-over?adminId=N.
func (h *Handler) TakeOver(c echo.Context) error {
	adminID, err := strconv.ParseInt(c.QueryParam("adminId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid admin id"))
	}

	if err := h.svc.TakeOverSession(c.Request().Context(), c.Param("sessionId"), adminID); err != nil {
		return h.mapError(c, err, "take over session")
	}
	return c.NoContent(http.StatusOK)
}

// AIStatus handles GET /api/support/ai/status.
func (h *Handler) AIStatus(c echo.Context) error {
	enabled := h.svc.AIEnabled()
	mode := "Rule-Based"
	if enabled {
		mode = "AI-Powered"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"aiEnabled": enabled,
		"mode":      mode,
	})
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) mapError(c echo.Context, err error, op string) error {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, errBody("session not found"))
	case errors.Is(err, chat.ErrValidation):
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	case errors.Is(err, chat.ErrSessionClosed), errors.Is(err, chat.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, errBody(err.Error()))
	default:
		h.log.Error().Err(err).Str("op", op).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, errBody("internal error"))
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
