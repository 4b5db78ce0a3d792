package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/lost-found/backend/internal/chat"
	"github.com/anonto42/lost-found/backend/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ChatHandler serves the masked chat threads
type ChatHandler struct {
	chat     *chat.Service
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewChatHandler(svc *chat.Service, allowedOrigin string, log *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chat: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		log: log,
	}
}

// RegisterChatRoutes registers thread routes
func (h *ChatHandler) RegisterChatRoutes(g *echo.Group) {
	g.GET("/threads/:id", h.GetThread)
	g.GET("/threads/:id/messages", h.ListMessages)
	g.POST("/threads/:id/messages", h.SendMessage)
	g.GET("/threads/:id/ws", h.Live)
}

func (h *ChatHandler) GetThread(c echo.Context) error {
	v, err := h.chat.Thread(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// ListMessages returns messages oldest first. ?after=<message id> pages
// forward; ?limit caps the window.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	msgs, err := h.chat.Read(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), c.QueryParam("after"), limit)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req models.SendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	msg, err := h.chat.Append(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// Live upgrades to a websocket and streams the thread. Clients reconnect
// with ?after=<last seen id> and dedupe by message id.
func (h *ChatHandler) Live(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Authorize before upgrading so failures are plain HTTP errors.
	stream, err := h.chat.Subscribe(ctx, getUserIDFromContext(c), c.Param("id"), c.QueryParam("after"))
	if err != nil {
		return respondError(err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	// The read side only watches for the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := conn.WriteJSON(msg); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
