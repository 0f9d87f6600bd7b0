package user

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"codeweave/backend/internal/store"
)

// userRecord uses nullable columns so the unique keys admit many users without an email, phone or google id.
type userRecord struct {
	ID           uint64  `gorm:"primaryKey;autoIncrement"`
	Username     string  `gorm:"type:varchar(64)"`
	Email        *string `gorm:"type:varchar(255);uniqueIndex"`
	Phone        *string `gorm:"type:varchar(32);uniqueIndex"`
	PasswordHash []byte  `gorm:"type:varbinary(255)"`
	GoogleID     *string `gorm:"type:varchar(64);uniqueIndex"`
	CreatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func GormModels() []any {
	return []any{&userRecord{}}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *userRecord) toUser() *User {
	return &User{
		ID:           strconv.FormatUint(r.ID, 10),
		Username:     r.Username,
		Email:        deref(r.Email),
		Phone:        deref(r.Phone),
		PasswordHash: r.PasswordHash,
		GoogleID:     deref(r.GoogleID),
		CreatedAt:    r.CreatedAt,
	}
}

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

func (g *GormRepository) Create(ctx context.Context, u *User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rec := userRecord{
		Username:     u.Username,
		Email:        nullable(u.Email),
		Phone:        nullable(u.Phone),
		PasswordHash: u.PasswordHash,
		GoogleID:     nullable(u.GoogleID),
		CreatedAt:    u.CreatedAt,
	}
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if store.IsDuplicateKey(err) {
			return ErrUserExists
		}
		return wrapGorm("insert user", err)
	}
	u.ID = strconv.FormatUint(rec.ID, 10)
	return nil
}

func (g *GormRepository) first(ctx context.Context, query string, args ...any) (*User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rec userRecord
	if err := g.db.WithContext(ctx).Where(query, args...).Order("id ASC").First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, wrapGorm("find user", err)
	}
	return rec.toUser(), nil
}

func (g *GormRepository) FindByID(ctx context.Context, id string) (*User, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return g.first(ctx, "id = ?", n)
}

func (g *GormRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, ErrUserNotFound
	}
	return g.first(ctx, "email = ? OR phone = ?", identifier, identifier)
}

func (g *GormRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	return g.first(ctx, "email = ?", email)
}

func (g *GormRepository) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, ErrUserNotFound
	}
	return g.first(ctx, "google_id = ?", googleID)
}

func (g *GormRepository) LinkGoogleID(ctx context.Context, id, googleID string) error {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return ErrUserNotFound
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res := g.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", n).Update("google_id", googleID)
	if res.Error != nil {
		if store.IsDuplicateKey(res.Error) {
			return ErrUserExists
		}
		return wrapGorm("link google id", res.Error)
	}
	if res.RowsAffected == 0 {
		// unchanged value also reports 0 rows on MySQL
		if _, err := g.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
