package ws

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var localHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return localHosts[strings.ToLower(u.Hostname())]
}

// checkOrigin accepts a missing or "null" origin, local development origins and the
// configured ones ("*" allows any).
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "null" {
			return true
		}
		if isLocalOrigin(origin) {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

type Manager struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewManager(h *Hub, allowedOrigins []string) *Manager {
	return &Manager{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// WebSocketConnect upgrades the request and serves the connection until it closes.
// Identity comes from the optional auth middleware ("userId", "username").
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetString("userId")
	username := c.GetString("username")

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	wsConn := newConn(conn, m.hub, uuid.NewString(), userID, username)
	if !m.hub.register(wsConn) {
		wsConn.closeGoingAway("server shutting down")
		return
	}
	defer wsConn.cleanup()

	// start the writer before anything can be queued
	go wsConn.writeLoop()
	wsConn.readLoop()
}
