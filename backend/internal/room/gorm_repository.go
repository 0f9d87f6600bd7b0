package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"codeweave/backend/internal/store"
)

type roomRecord struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement"`
	RoomID    string       `gorm:"type:varchar(16);uniqueIndex"`
	Name      string       `gorm:"type:varchar(255)"`
	OwnerID   string       `gorm:"type:varchar(64);index:idx_rooms_owner_created,priority:1"`
	CreatedAt time.Time    `gorm:"index:idx_rooms_owner_created,priority:2"`
	Files     []fileRecord `gorm:"foreignKey:RoomRecordID;constraint:OnDelete:CASCADE"`
}

func (roomRecord) TableName() string { return "rooms" }

type fileRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	RoomRecordID uint64 `gorm:"index"`
	FileID       string `gorm:"type:varchar(36);uniqueIndex"`
	Position     int
	Name         string `gorm:"type:varchar(255)"`
	Content      string `gorm:"type:longtext"`
	Language     string `gorm:"type:varchar(32)"`
}

func (fileRecord) TableName() string { return "room_files" }

// GormModels lists the tables InitMySQL should migrate for rooms.
func GormModels() []any {
	return []any{&roomRecord{}, &fileRecord{}}
}

// GormRepository stores rooms in MySQL. The unused users list is not persisted.
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func wrapGorm(op string, err error) error {
	if store.IsConnError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (g *GormRepository) Insert(ctx context.Context, r *Room) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rec := roomRecord{RoomID: r.RoomID, Name: r.Name, OwnerID: r.OwnerID, CreatedAt: r.CreatedAt}
	for i, f := range r.Files {
		rec.Files = append(rec.Files, fileRecord{
			FileID: f.ID, Position: i, Name: f.Name, Content: f.Content, Language: f.Language,
		})
	}
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if store.IsDuplicateKey(err) {
			return ErrDuplicateCode
		}
		return wrapGorm("insert room", err)
	}
	return nil
}

func (g *GormRepository) FindByID(ctx context.Context, roomID string) (*Room, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rec roomRecord
	err := g.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("room_id = ?", roomID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapGorm("find room", err)
	}

	r := &Room{
		RoomID:    rec.RoomID,
		Name:      rec.Name,
		OwnerID:   rec.OwnerID,
		Files:     make([]File, len(rec.Files)),
		Users:     []string{},
		CreatedAt: rec.CreatedAt,
	}
	for i, f := range rec.Files {
		r.Files[i] = File{ID: f.FileID, Name: f.Name, Content: f.Content, Language: f.Language}
	}
	return r, nil
}

func (g *GormRepository) ListByOwner(ctx context.Context, ownerID string) ([]Summary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []struct {
		RoomID    string
		Name      string
		OwnerID   string
		CreatedAt time.Time
		FileCount int
	}
	err := g.db.WithContext(ctx).
		Model(&roomRecord{}).
		Select("rooms.room_id, rooms.name, rooms.owner_id, rooms.created_at, COUNT(room_files.id) AS file_count").
		Joins("LEFT JOIN room_files ON room_files.room_record_id = rooms.id").
		Where("rooms.owner_id = ?", ownerID).
		Group("rooms.id").
		Order("rooms.created_at DESC, rooms.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapGorm("list rooms", err)
	}
	out := make([]Summary, len(rows))
	for i, row := range rows {
		out[i] = Summary{RoomID: row.RoomID, Name: row.Name, OwnerID: row.OwnerID, CreatedAt: row.CreatedAt, FileCount: row.FileCount}
	}
	return out, nil
}

func (g *GormRepository) UpdateFileContent(ctx context.Context, roomID, fileID, content string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec roomRecord
		if err := tx.Select("id").Where("room_id = ?", roomID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return wrapGorm("find room", err)
		}
		// RowsAffected is 0 for unchanged content on MySQL, so look the file up first
		var file fileRecord
		if err := tx.Select("id").Where("room_record_id = ? AND file_id = ?", rec.ID, fileID).First(&file).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFileNotFound
			}
			return wrapGorm("find file", err)
		}
		if err := tx.Model(&fileRecord{}).Where("id = ?", file.ID).Update("content", content).Error; err != nil {
			return wrapGorm("update file", err)
		}
		return nil
	})
}
