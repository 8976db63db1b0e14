package handler

import (
	"errors"

	"repoinsight/internal/dto"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/pkg/serverutils"
	"repoinsight/internal/service"
	internalWS "repoinsight/internal/websocket"
	"repoinsight/pkg/rag/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ChatHandler is the HTTP face of the Q&A flow: a webhook for inbound
// messages, status and config reads, and the websocket replies are pushed on.
type ChatHandler struct {
	service   service.IRepoQAService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewChatHandler(svc service.IRepoQAService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *ChatHandler {
	return &ChatHandler{
		service:   svc,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *ChatHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/chat/v1")
	g.Get("/health", h.Health)
	g.Get("/ws", h.ServeWs)

	auth := serverutils.NewJwtMiddleware(h.jwtSecret)
	g.Post("/messages", auth, h.PostMessage)
	g.Get("/status", auth, h.Status)
	g.Get("/config", auth, h.Config)
}

func (h *ChatHandler) Health(c *fiber.Ctx) error {
	return c.JSON(serverutils.SuccessResponse("ok", nil))
}

// PostMessage accepts one chat message. Replies arrive asynchronously over
// the websocket and the event bus.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := h.service.HandleMessage(c.UserContext(), req.UserID, req.Text); err != nil {
		return h.mapError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Message accepted", dto.InboundMessageResponse{
		Accepted: true,
		UserID:   req.UserID,
	}))
}

// Status defaults to the caller's own session; the host runtime may ask for
// any user with ?user_id=.
func (h *ChatHandler) Status(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		userID, _ = c.Locals(serverutils.UserIDLocal).(string)
	}

	res, err := h.service.Status(c.UserContext(), userID)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(serverutils.SuccessResponse("Success get status", res))
}

func (h *ChatHandler) Config(c *fiber.Ctx) error {
	return c.JSON(serverutils.SuccessResponse("Success get config", h.service.Config()))
}

// ServeWs authenticates the handshake and streams the user's replies.
func (h *ChatHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := serverutils.BearerToken(c)
	if tokenStr == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')")
	}
	userID, err := serverutils.ParseUserID(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn("ChatHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err})
		return err
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ChatHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("ChatHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

func (h *ChatHandler) mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyUserID):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Service is shutting down")
	default:
		h.logger.Error("ChatHandler", "Request failed", map[string]interface{}{"error": err})
		return err
	}
}
