package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/geojoki/internal/realtime"
)

type NotificationHandler struct {
	Hub *realtime.Hub
	Log *zap.Logger
}

func NewNotificationHandler(hub *realtime.Hub, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Hub: hub, Log: log.Named("ws")}
}

// Routes mounts the websocket on app directly; protected must set userId.
func (h *NotificationHandler) Routes(app fiber.Router, protected ...fiber.Handler) {
	app.Get("/ws/notifications", chain(protected, h.Upgrade, websocket.New(h.Serve))...)
}

// Upgrade rejects plain HTTP requests and hands the caller's id to the socket.
func (h *NotificationHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	c.Locals("wsUser", userID)
	return c.Next()
}

func (h *NotificationHandler) Serve(c *websocket.Conn) {
	userID, ok := c.Locals("wsUser").(uuid.UUID)
	if !ok {
		_ = c.Close()
		return
	}

	client := realtime.NewClient(userID, realtime.NewWebSocketConn(c))
	h.Log.Debug("websocket connected", zap.String("user_id", userID.String()), zap.String("client_id", client.ID))

	h.Hub.Serve(client)

	h.Log.Debug("websocket disconnected", zap.String("user_id", userID.String()), zap.String("client_id", client.ID))
}
