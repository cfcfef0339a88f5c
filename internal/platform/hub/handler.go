package hub

import (
	"encoding/json"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/parakaleomed/clinic/internal/platform/auth"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Clinic LAN only; tighten if ever exposed.
	},
}

// Handler upgrades station connections and runs their read/write pumps.
type Handler struct {
	hub          *Hub
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewHandler creates a websocket handler bound to the given Hub. pingInterval
// is how often the server pings; pongTimeout is how long a silent session
// lives before its slot is released.
func NewHandler(h *Hub, pingInterval, pongTimeout time.Duration) *Handler {
	return &Handler{hub: h, pingInterval: pingInterval, pongTimeout: pongTimeout}
}

// RegisterRoutes registers the websocket endpoint on the provided group.
func (wh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wh.HandleConnect)
}

// HandleConnect upgrades the HTTP connection, registers the session, and
// starts the pumps.
func (wh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := NewSession(auth.RoleFromContext(c.Request().Context()))
	wh.hub.Register(session)

	go wh.writePump(session, ws)
	go wh.readPump(session, ws)

	return nil
}

// readPump consumes watch/unwatch messages and enforces the heartbeat: every
// pong pushes the read deadline out, so a silently-dead tablet times out and
// is deregistered.
func (wh *Handler) readPump(session *Session, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(session)
		ws.Close()
	}()

	ws.SetReadDeadline(time.Now().Add(wh.pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wh.pongTimeout))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg SessionMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}

		wh.hub.ProcessMessage(session, msg)
	}
}

// writePump forwards events to the socket and pings on a ticker.
func (wh *Handler) writePump(session *Session, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(wh.pingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-session.Send:
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
