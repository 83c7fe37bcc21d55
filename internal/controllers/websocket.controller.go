package controllers

import (
	"autoservice/internal/middleware"
	"autoservice/internal/models"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type clientMessage struct {
	Type string `json:"type"`
}

func (a *API) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			return middleware.OriginAllowed(origin, a.AllowedOrigins)
		},
	}
}

// HandleWebSocket streams run events to the client until it disconnects
func (a *API) HandleWebSocket(c *gin.Context) {
	upgrader := a.upgrader()
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}

	clientID := c.ClientIP() + "-" + uuid.NewString()
	sub := a.Hub.Subscribe(clientID, 256)
	slog.InfoContext(c.Request.Context(), "websocket client connected", "client", clientID)

	go a.writePump(ws, sub.Send)
	go a.readPump(ws, clientID)
}

// readPump drains client frames so control messages are processed and
// unsubscribes once the connection fails
func (a *API) readPump(ws *websocket.Conn, clientID string) {
	defer func() {
		a.Hub.Unsubscribe(clientID)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "client", clientID, "error", err)
			}
			return
		}
		if msg.Type == "unsubscribe" {
			return
		}
	}
}

// writePump forwards hub events and keeps the connection alive with pings
func (a *API) writePump(ws *websocket.Conn, events <-chan models.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case event, ok := <-events:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					slog.Warn("websocket write error", "error", err)
				}
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
