package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codeweave/backend/internal/apperr"
	"codeweave/backend/internal/collab"
	"codeweave/backend/internal/presence"
	"codeweave/backend/internal/room"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 1 << 20
	defaultSendQueue = 256
	opTimeout        = 5 * time.Second
	anonymousName    = "Anonymous"
)

// Conn is one client socket. Its state is Connected until a join succeeds and
// JoinedRoom while roomID is set. roomID and self belong to the read goroutine.
type Conn struct {
	id       string
	userID   string
	username string

	ws  *websocket.Conn
	hub *Hub

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	roomID string
	self   presence.Participant
}

func newConn(ws *websocket.Conn, hub *Hub, id, userID, username string) *Conn {
	return &Conn{
		id:       id,
		userID:   userID,
		username: username,
		ws:       ws,
		hub:      hub,
		send:     make(chan []byte, hub.sendQueue),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// enqueue never blocks. A connection that cannot keep up is dropped; the client
// resyncs from room-state when it reconnects.
func (c *Conn) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		log.Printf("ws: send queue full, disconnecting conn=%s", c.id)
		c.kill()
		return false
	}
}

func (c *Conn) sendEvent(event string, data any) {
	payload, err := json.Marshal(ServerMessage{Event: event, Data: data})
	if err != nil {
		log.Printf("ws: encode %s conn=%s: %v", event, c.id, err)
		return
	}
	c.enqueue(payload)
}

func (c *Conn) sendError(code, message string) {
	c.sendEvent(EventError, ErrorPayload{Code: code, Message: message})
}

func (c *Conn) kill() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) closeGoingAway(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.kill()
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("ws: write error conn=%s: %v", c.id, err)
				c.kill()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.kill()
				return
			}
		}
	}
}

func (c *Conn) readLoop() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		if c.roomID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			if err := c.hub.tracker.Touch(ctx, c.roomID, c.id); err != nil {
				log.Printf("ws: presence heartbeat conn=%s room=%s: %v", c.id, c.roomID, err)
			}
			cancel()
		}
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("ws: read error conn=%s room=%s: %v", c.id, c.roomID, err)
			}
			return
		}
		c.handle(data)
	}
}

// cleanup runs once the read loop ends, whatever the reason.
func (c *Conn) cleanup() {
	c.kill()
	if c.roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		c.leaveRoom(ctx)
		cancel()
	}
	c.hub.unregister(c)
}

func (c *Conn) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("ws: drop malformed message conn=%s: %v", c.id, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch msg.Event {
	case EventJoinRoom:
		c.handleJoin(ctx, msg.Data)
	case EventLeaveRoom:
		c.handleLeave(ctx, msg.Data)
	case EventCodeChange:
		c.handleCodeChange(ctx, msg.Data)
	case EventCursorMove:
		c.handleCursorMove(ctx, msg.Data)
	case EventStatusChange:
		c.handleStatusChange(ctx, msg.Data)
	default:
		log.Printf("ws: drop unknown event %q conn=%s", msg.Event, c.id)
	}
}

// inRoom reports whether the connection has joined roomID.
func (c *Conn) inRoom(roomID string) bool {
	return c.roomID != "" && room.NormalizeCode(roomID) == c.roomID
}

func (c *Conn) handleJoin(ctx context.Context, raw json.RawMessage) {
	var p JoinRoomPayload
	if err := decodeData(raw, &p); err != nil {
		log.Printf("ws: drop join-room conn=%s: %v", c.id, err)
		return
	}
	code := room.NormalizeCode(p.RoomID)
	if code == "" {
		log.Printf("ws: drop join-room without room id conn=%s", c.id)
		return
	}

	var rm *room.Room
	if c.hub.rooms != nil {
		var err error
		rm, err = c.hub.rooms.GetRoom(ctx, code)
		if err != nil {
			e := apperr.As(err)
			if e.Kind == apperr.NotFound {
				c.sendError(CodeRoomNotFound, "Room not found")
			} else {
				log.Printf("ws: join-room lookup failed conn=%s room=%s: %v", c.id, code, err)
				c.sendError(e.Code, e.Message)
			}
			return
		}
	}

	rejoin := c.roomID == code

	name := strings.TrimSpace(p.Username)
	if name == "" {
		name = c.username
	}
	if name == "" {
		name = anonymousName
	}
	activeFile := p.FileID
	if activeFile == "" && rm != nil && len(rm.Files) > 0 {
		activeFile = rm.Files[0].ID
	}
	part := presence.Participant{
		ID:         c.id,
		UserID:     c.userID,
		Username:   name,
		Color:      p.Color,
		ActiveFile: activeFile,
	}
	if rejoin {
		part.Color = firstNonEmpty(p.Color, c.self.Color)
		part.JoinedAt = c.self.JoinedAt
	}

	list, err := c.hub.tracker.Join(ctx, code, part)
	if err != nil {
		if errors.Is(err, presence.ErrRoomFull) {
			c.sendError(CodeRoomFull, "Room is full")
		} else {
			log.Printf("ws: presence join failed conn=%s room=%s: %v", c.id, code, err)
			c.sendError("PRESENCE_UNAVAILABLE", "Could not join room")
		}
		if rejoin {
			c.leaveRoom(ctx)
		}
		return
	}
	for _, member := range list {
		if member.ID == c.id {
			part = member
			break
		}
	}

	// the previous room is only left once the new one has accepted us
	if c.roomID != "" && !rejoin {
		c.leaveRoom(ctx)
	}
	c.hub.join(code, c)
	c.roomID = code
	c.self = part

	c.sendEvent(EventRoomState, RoomState{
		RoomID:       code,
		Self:         part,
		Participants: list,
		Pending:      c.hub.pendingFor(code),
	})
	if !rejoin {
		c.hub.Broadcast(ctx, code, c.id, ServerMessage{Event: EventUserJoined, Data: part})
	}
}

func (c *Conn) handleLeave(ctx context.Context, raw json.RawMessage) {
	if c.roomID == "" {
		log.Printf("ws: drop leave-room outside a room conn=%s", c.id)
		return
	}
	var p LeaveRoomPayload
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}
	if p.RoomID != "" && !c.inRoom(p.RoomID) {
		log.Printf("ws: drop leave-room for room=%s conn=%s in room=%s", p.RoomID, c.id, c.roomID)
		return
	}
	c.leaveRoom(ctx)
}

// leaveRoom moves the connection back to Connected and tells the peers.
func (c *Conn) leaveRoom(ctx context.Context) {
	roomID := c.roomID
	c.hub.leave(roomID, c)
	c.roomID = ""

	left, ok, err := c.hub.tracker.Leave(ctx, roomID, c.id)
	if err != nil {
		log.Printf("ws: presence leave failed conn=%s room=%s: %v", c.id, roomID, err)
	}
	if !ok {
		left = c.self
	}
	c.self = presence.Participant{}
	c.hub.Broadcast(ctx, roomID, c.id, ServerMessage{
		Event: EventUserLeft,
		Data:  UserLeft{ParticipantID: c.id, Username: left.Username},
	})
}

func (c *Conn) handleCodeChange(ctx context.Context, raw json.RawMessage) {
	var p CodeChangePayload
	if err := decodeData(raw, &p); err != nil {
		log.Printf("ws: drop code-change conn=%s: %v", c.id, err)
		return
	}
	if !c.inRoom(p.RoomID) {
		log.Printf("ws: drop code-change for room=%q conn=%s in room=%q", p.RoomID, c.id, c.roomID)
		return
	}
	if p.FileID == "" || p.Content == nil {
		log.Printf("ws: drop code-change without fileId or content conn=%s room=%s", c.id, c.roomID)
		return
	}

	c.hub.submitEdit(ctx, collab.NewEditRecord(c.roomID, p.FileID, c.id, c.userID, *p.Content, time.Now()))
	c.hub.Broadcast(ctx, c.roomID, c.id, ServerMessage{Event: EventCodeUpdate, Data: raw})
}

func (c *Conn) handleCursorMove(ctx context.Context, raw json.RawMessage) {
	var p CursorMovePayload
	if err := decodeData(raw, &p); err != nil {
		log.Printf("ws: drop cursor-move conn=%s: %v", c.id, err)
		return
	}
	if !c.inRoom(p.RoomID) {
		log.Printf("ws: drop cursor-move for room=%q conn=%s in room=%q", p.RoomID, c.id, c.roomID)
		return
	}
	if p.Line == nil || p.Column == nil {
		log.Printf("ws: drop cursor-move without position conn=%s room=%s", c.id, c.roomID)
		return
	}

	if _, _, err := c.hub.tracker.UpdateCursor(ctx, c.roomID, c.id, p.FileID, presence.Cursor{Line: *p.Line, Column: *p.Column}); err != nil {
		log.Printf("ws: presence cursor update failed conn=%s room=%s: %v", c.id, c.roomID, err)
	}
	out, err := withField(raw, "participantId", c.id)
	if err != nil {
		log.Printf("ws: drop cursor-move conn=%s: %v", c.id, err)
		return
	}
	c.hub.Broadcast(ctx, c.roomID, c.id, ServerMessage{Event: EventCursorUpdate, Data: out})
}

func (c *Conn) handleStatusChange(ctx context.Context, raw json.RawMessage) {
	var p StatusChangePayload
	if err := decodeData(raw, &p); err != nil {
		log.Printf("ws: drop status-change conn=%s: %v", c.id, err)
		return
	}
	if !c.inRoom(p.RoomID) {
		log.Printf("ws: drop status-change for room=%q conn=%s in room=%q", p.RoomID, c.id, c.roomID)
		return
	}
	updated, ok, err := c.hub.tracker.UpdateStatus(ctx, c.roomID, c.id, p.Status)
	if err != nil {
		log.Printf("ws: drop status-change conn=%s room=%s: %v", c.id, c.roomID, err)
		return
	}
	username := c.self.Username
	if ok {
		c.self = updated
		username = updated.Username
	}
	c.hub.Broadcast(ctx, c.roomID, c.id, ServerMessage{
		Event: EventStatusUpdate,
		Data:  StatusUpdate{ParticipantID: c.id, Username: username, Status: p.Status},
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
