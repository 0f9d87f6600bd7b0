package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"codeweave/backend/internal/store"
)

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email,omitempty"`
	Phone     string             `bson:"phone,omitempty"`
	Password  []byte             `bson:"password,omitempty"`
	GoogleID  string             `bson:"google_id,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d *userDocument) toUser() *User {
	return &User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		Phone:        d.Phone,
		PasswordHash: d.Password,
		GoogleID:     d.GoogleID,
		CreatedAt:    d.CreatedAt,
	}
}

type MongoRepository struct {
	collection *mongo.Collection
}

var _ Repository = (*MongoRepository)(nil)

func NewMongoRepository(db *store.MongoDB) *MongoRepository {
	return &MongoRepository{collection: db.Collection(store.UsersCollection)}
}

func wrapMongo(op string, err error) error {
	if store.IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (m *MongoRepository) Create(ctx context.Context, u *User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	doc := userDocument{
		ID:        primitive.NewObjectID(),
		Username:  u.Username,
		Email:     u.Email,
		Phone:     u.Phone,
		Password:  u.PasswordHash,
		GoogleID:  u.GoogleID,
		CreatedAt: u.CreatedAt,
	}
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return wrapMongo("insert user", err)
	}
	u.ID = doc.ID.Hex()
	return nil
}

func (m *MongoRepository) findOne(ctx context.Context, filter bson.M) (*User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc userDocument
	if err := m.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, wrapMongo("find user", err)
	}
	return doc.toUser(), nil
}

func (m *MongoRepository) FindByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return m.findOne(ctx, bson.M{"_id": oid})
}

func (m *MongoRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, ErrUserNotFound
	}
	return m.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": identifier},
		bson.M{"phone": identifier},
	}})
}

func (m *MongoRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	return m.findOne(ctx, bson.M{"email": email})
}

func (m *MongoRepository) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, ErrUserNotFound
	}
	return m.findOne(ctx, bson.M{"google_id": googleID})
}

func (m *MongoRepository) LinkGoogleID(ctx context.Context, id, googleID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrUserNotFound
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := m.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"google_id": googleID}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return wrapMongo("link google id", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
