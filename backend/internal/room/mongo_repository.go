package room

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

type fileDocument struct {
	ID       string `bson:"id"`
	Name     string `bson:"name"`
	Content  string `bson:"content"`
	Language string `bson:"language"`
}

type roomDocument struct {
	ObjectID  primitive.ObjectID `bson:"_id,omitempty"`
	RoomID    string             `bson:"room_id"`
	Name      string             `bson:"name"`
	OwnerID   string             `bson:"owner_id,omitempty"`
	Files     []fileDocument     `bson:"files"`
	Users     []string           `bson:"users"`
	CreatedAt time.Time          `bson:"created_at"`
}

type summaryDocument struct {
	RoomID    string    `bson:"room_id"`
	Name      string    `bson:"name"`
	OwnerID   string    `bson:"owner_id"`
	CreatedAt time.Time `bson:"created_at"`
	FileCount int       `bson:"file_count"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

var _ Repository = (*MongoRepository)(nil)

func NewMongoRepository(db *store.MongoDB) *MongoRepository {
	return &MongoRepository{collection: db.Collection(store.RoomsCollection)}
}

func toDocument(r *Room) *roomDocument {
	files := make([]fileDocument, len(r.Files))
	for i, f := range r.Files {
		files[i] = fileDocument{ID: f.ID, Name: f.Name, Content: f.Content, Language: f.Language}
	}
	users := r.Users
	if users == nil {
		users = []string{}
	}
	return &roomDocument{
		RoomID:    r.RoomID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		Files:     files,
		Users:     users,
		CreatedAt: r.CreatedAt,
	}
}

func (d *roomDocument) toRoom() *Room {
	files := make([]File, len(d.Files))
	for i, f := range d.Files {
		lang := f.Language
		if lang == "" {
			lang = DefaultFileLanguage
		}
		files[i] = File{ID: f.ID, Name: f.Name, Content: f.Content, Language: lang}
	}
	users := d.Users
	if users == nil {
		users = []string{}
	}
	return &Room{
		RoomID:    d.RoomID,
		Name:      d.Name,
		OwnerID:   d.OwnerID,
		Files:     files,
		Users:     users,
		CreatedAt: d.CreatedAt,
	}
}

func wrapMongo(op string, err error) error {
	if store.IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (m *MongoRepository) Insert(ctx context.Context, r *Room) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := m.collection.InsertOne(ctx, toDocument(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCode
		}
		return wrapMongo("insert room", err)
	}
	return nil
}

func (m *MongoRepository) FindByID(ctx context.Context, roomID string) (*Room, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc roomDocument
	err := m.collection.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, wrapMongo("find room", err)
	}
	return doc.toRoom(), nil
}

func (m *MongoRepository) ListByOwner(ctx context.Context, ownerID string) ([]Summary, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": ownerID}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$project", Value: bson.M{
			"room_id":    1,
			"name":       1,
			"owner_id":   1,
			"created_at": 1,
			"file_count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$files", bson.A{}}}},
		}}},
	}
	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapMongo("list rooms", err)
	}
	defer cursor.Close(ctx)

	var docs []summaryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapMongo("decode rooms", err)
	}
	out := make([]Summary, len(docs))
	for i, d := range docs {
		out[i] = Summary{RoomID: d.RoomID, Name: d.Name, OwnerID: d.OwnerID, CreatedAt: d.CreatedAt, FileCount: d.FileCount}
	}
	return out, nil
}

func (m *MongoRepository) UpdateFileContent(ctx context.Context, roomID, fileID, content string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := m.collection.UpdateOne(ctx,
		bson.M{"room_id": roomID, "files.id": fileID},
		bson.M{"$set": bson.M{"files.$.content": content}},
	)
	if err != nil {
		return wrapMongo("update file", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := m.collection.CountDocuments(ctx, bson.M{"room_id": roomID})
	if err != nil {
		return wrapMongo("count room", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrFileNotFound
}
