package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"codeweave/backend/internal/httpapi/middleware"
	"codeweave/backend/internal/presence"
	"codeweave/backend/internal/room"
)

type RoomHandler struct {
	rooms   *room.Service
	tracker *presence.Tracker
}

func NewRoomHandler(rooms *room.Service, tracker *presence.Tracker) *RoomHandler {
	return &RoomHandler{rooms: rooms, tracker: tracker}
}

type createRoomReq struct {
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

type joinRoomReq struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// Create falls back to the token's user as owner when the body names none.
func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		owner = c.GetString(middleware.CtxUserID)
	}
	r, err := h.rooms.CreateRoom(c.Request.Context(), req.Name, owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roomId": r.RoomID, "name": r.Name, "message": "Room created successfully"})
}

func (h *RoomHandler) Join(c *gin.Context) {
	var req joinRoomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	r, err := h.rooms.GetRoom(c.Request.Context(), req.RoomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": r.RoomID, "name": r.Name, "files": r.Files})
}

func (h *RoomHandler) ListByUser(c *gin.Context) {
	rooms, err := h.rooms.ListRoomsByOwner(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *RoomHandler) Participants(c *gin.Context) {
	r, err := h.rooms.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := h.tracker.ListParticipants(c.Request.Context(), r.RoomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
