package ws

import (
	"bytes"
	"encoding/json"
	"errors"

	"codeweave/backend/internal/presence"
)

// client -> server
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventCodeChange   = "code-change"
	EventCursorMove   = "cursor-move"
	EventStatusChange = "status-change"
)

// server -> client
const (
	EventRoomState    = "room-state"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventCodeUpdate   = "code-update"
	EventCursorUpdate = "cursor-update"
	EventStatusUpdate = "status-update"
	EventError        = "error"
)

// Error codes carried by the error event.
const (
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeRoomFull     = "ROOM_FULL"
)

var errMalformed = errors.New("malformed payload")

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// JoinRoomPayload also accepts a bare room code string.
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username,omitempty"`
	Color    string `json:"color,omitempty"`
	FileID   string `json:"fileId,omitempty"`
}

func (p *JoinRoomPayload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &p.RoomID)
	}
	type plain JoinRoomPayload
	return json.Unmarshal(b, (*plain)(p))
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type CodeChangePayload struct {
	RoomID  string  `json:"roomId"`
	FileID  string  `json:"fileId"`
	Content *string `json:"content"`
}

type CursorMovePayload struct {
	RoomID string `json:"roomId"`
	Line   *int   `json:"line"`
	Column *int   `json:"column"`
	FileID string `json:"fileId,omitempty"`
}

type StatusChangePayload struct {
	RoomID string          `json:"roomId"`
	Status presence.Status `json:"status"`
}

type RoomState struct {
	RoomID       string                 `json:"roomId"`
	Self         presence.Participant   `json:"self"`
	Participants []presence.Participant `json:"participants"`
	// latest content per file id not yet written to the room store
	Pending map[string]string `json:"pending"`
}

type UserLeft struct {
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
}

type StatusUpdate struct {
	ParticipantID string          `json:"participantId"`
	Username      string          `json:"username"`
	Status        presence.Status `json:"status"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeData(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errMalformed
	}
	return json.Unmarshal(raw, v)
}

// withField returns the JSON object raw with key set, keeping the other fields as sent.
func withField(raw json.RawMessage, key string, value any) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	obj[key] = v
	return json.Marshal(obj)
}
