package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

const (
	RoomsCollection = "rooms"
	UsersCollection = "users"
)

// MongoDB wraps a client and the application database.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	config   MongoConfig
}

type MongoConfig struct {
	URI             string
	Database        string
	ConnectTimeout  time.Duration
	PingTimeout     time.Duration
	SelectTimeout   time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	RequirePingOnUp bool
}

func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "codeweave",
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    5 * time.Second,
		SelectTimeout:  5 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    0,
	}
}

// NewMongoDB connects lazily. A failed ping is only logged unless RequirePingOnUp is set:
// the server keeps running and store calls answer 503 until the database comes back.
func NewMongoDB(cfg MongoConfig) (*MongoDB, error) {
	def := DefaultMongoConfig()
	if cfg.URI == "" {
		cfg.URI = def.URI
	}
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.SelectTimeout <= 0 {
		cfg.SelectTimeout = def.SelectTimeout
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = def.MaxPoolSize
	}

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.SelectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	m := &MongoDB{client: client, database: client.Database(cfg.Database), config: cfg}
	if err := m.Ping(context.Background()); err != nil {
		if cfg.RequirePingOnUp {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongodb: %w", err)
		}
		log.Printf("mongodb not reachable yet, store calls will fail until it is: %v", err)
		return m, nil
	}
	log.Printf("connected to mongodb database=%s", cfg.Database)
	return m, nil
}

func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

func (m *MongoDB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	log.Println("disconnected from mongodb")
	return nil
}

// EnsureIndexes creates the unique keys both repositories rely on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	roomIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := m.Collection(RoomsCollection).Indexes().CreateMany(ctx, roomIndexes); err != nil {
		return fmt.Errorf("create room indexes: %w", err)
	}

	// email, phone and google_id are optional, so the unique keys are sparse
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	if _, err := m.Collection(UsersCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// IsUnavailable reports errors that mean the database could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var sel topology.ServerSelectionError
	if errors.As(err, &sel) {
		return true
	}
	return errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded)
}
