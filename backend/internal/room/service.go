package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"codeweave/backend/internal/apperr"
)

const defaultCreateAttempts = 5

type Service struct {
	repo        Repository
	newCode     CodeGenerator
	maxAttempts int
	now         func() time.Time
	// collapses concurrent lookups of the same room code
	sf singleflight.Group
}

type Option func(*Service)

func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *Service) { s.newCode = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		newCode:     NewCode,
		maxAttempts: defaultCreateAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func DefaultFile() File {
	return File{
		ID:       uuid.NewString(),
		Name:     DefaultFileName,
		Content:  DefaultFileContent,
		Language: DefaultFileLanguage,
	}
}

// CreateRoom allocates a fresh code and persists the room with the seeded default file.
// A code collision is retried with a new code.
func (s *Service) CreateRoom(ctx context.Context, name, ownerID string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.NewValidation("VALIDATION", "Room name is required")
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, apperr.NewInternal(fmt.Errorf("generate room code: %w", err))
		}
		r := &Room{
			RoomID:    code,
			Name:      name,
			OwnerID:   strings.TrimSpace(ownerID),
			Files:     []File{DefaultFile()},
			Users:     []string{},
			CreatedAt: s.now().UTC(),
		}
		err = s.repo.Insert(ctx, r)
		if err == nil {
			return r.Clone(), nil
		}
		if errors.Is(err, ErrDuplicateCode) {
			log.Printf("room code collision code=%s attempt=%d", code, attempt)
			continue
		}
		return nil, translate(err)
	}
	return nil, apperr.NewConflict(http.StatusConflict, "ROOM_CODE_EXHAUSTED",
		"Could not allocate a unique room code, try again")
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	code := NormalizeCode(roomID)
	if code == "" {
		return nil, apperr.NewValidation("VALIDATION", "Room ID is required")
	}
	// the shared lookup must outlive whichever caller started it
	ch := s.sf.DoChan(code, func() (interface{}, error) {
		lookupCtx, cancel := withTimeout(context.WithoutCancel(ctx))
		defer cancel()
		return s.repo.FindByID(lookupCtx, code)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, translate(res.Err)
		}
		return res.Val.(*Room).Clone(), nil
	}
}

func (s *Service) ListRoomsByOwner(ctx context.Context, ownerID string) ([]Summary, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperr.NewValidation("VALIDATION", "User ID is required")
	}
	rooms, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, translate(err)
	}
	if rooms == nil {
		rooms = []Summary{}
	}
	return rooms, nil
}

// UpdateFileContent overwrites one file's stored snapshot. Used by the edit checkpointer.
func (s *Service) UpdateFileContent(ctx context.Context, roomID, fileID, content string) error {
	if err := s.repo.UpdateFileContent(ctx, NormalizeCode(roomID), fileID, content); err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NewNotFound("ROOM_NOT_FOUND", "Room not found")
	case errors.Is(err, ErrFileNotFound):
		return apperr.NewNotFound("FILE_NOT_FOUND", "File not found")
	case errors.Is(err, ErrUnavailable):
		return apperr.NewStoreUnavailable(err)
	default:
		return apperr.NewInternal(err)
	}
}
