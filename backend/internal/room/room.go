package room

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultFileName     = "main.js"
	DefaultFileContent  = "// Welcome to CodeWeave\n"
	DefaultFileLanguage = "javascript"
)

type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

type Room struct {
	RoomID    string    `json:"roomId"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId,omitempty"`
	Files     []File    `json:"files"`
	Users     []string  `json:"users"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is what the owner listing returns; file contents are left out.
type Summary struct {
	RoomID    string    `json:"roomId"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	FileCount int       `json:"fileCount"`
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Files = append([]File(nil), r.Files...)
	cp.Users = append([]string(nil), r.Users...)
	return &cp
}

func (r *Room) File(fileID string) (File, bool) {
	for _, f := range r.Files {
		if f.ID == fileID {
			return f, true
		}
	}
	return File{}, false
}

var (
	ErrNotFound      = errors.New("room not found")
	ErrFileNotFound  = errors.New("file not found")
	ErrDuplicateCode = errors.New("room code already taken")
	ErrUnavailable   = errors.New("room store unavailable")
)

// Repository persists rooms. Implementations return ErrDuplicateCode on a room code
// uniqueness violation and wrap connectivity failures with ErrUnavailable.
type Repository interface {
	Insert(ctx context.Context, r *Room) error
	FindByID(ctx context.Context, roomID string) (*Room, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Summary, error)
	UpdateFileContent(ctx context.Context, roomID, fileID, content string) error
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}
