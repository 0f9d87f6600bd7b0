package collab

import (
	"context"
	"time"
)

const EventCodeChanged = "CODE_CHANGED"

// EditRecord is one relayed code-change, as handed to the sinks.
type EditRecord struct {
	EventType     string    `json:"eventType"`
	RoomID        string    `json:"roomId"`
	FileID        string    `json:"fileId"`
	ParticipantID string    `json:"participantId"`
	UserID        string    `json:"userId,omitempty"`
	ContentLength int       `json:"contentLength"`
	Content       string    `json:"content"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

func NewEditRecord(roomID, fileID, participantID, userID, content string, at time.Time) EditRecord {
	return EditRecord{
		EventType:     EventCodeChanged,
		RoomID:        roomID,
		FileID:        fileID,
		ParticipantID: participantID,
		UserID:        userID,
		ContentLength: len(content),
		Content:       content,
		ReceivedAt:    at.UTC(),
	}
}

// EditSink consumes edit records off the relay path. Submit must not block for long.
type EditSink interface {
	Submit(ctx context.Context, rec EditRecord) error
}
