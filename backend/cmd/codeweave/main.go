package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/IBM/sarama"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"codeweave/backend/config"
	"codeweave/backend/internal/assistant"
	"codeweave/backend/internal/authservice"
	"codeweave/backend/internal/cache"
	"codeweave/backend/internal/collab"
	"codeweave/backend/internal/httpapi"
	"codeweave/backend/internal/httpapi/handlers"
	"codeweave/backend/internal/presence"
	"codeweave/backend/internal/room"
	"codeweave/backend/internal/store"
	"codeweave/backend/internal/user"
	"codeweave/backend/internal/ws"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildTime    = "unknown"
)

type stores struct {
	rooms  room.Repository
	users  user.Repository
	probe  handlers.Probe
	closer func(ctx context.Context) error
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		mcfg := store.DefaultMongoConfig()
		mcfg.URI = cfg.Mongo.URI
		mcfg.Database = cfg.Mongo.Database
		mcfg.ConnectTimeout = cfg.Mongo.ConnectTimeout
		db, err := store.NewMongoDB(mcfg)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(context.Background()); err != nil {
			log.Printf("ensure mongo indexes: %v", err)
		}
		return &stores{
			rooms:  room.NewMongoRepository(db),
			users:  user.NewMongoRepository(db),
			probe:  db.Ping,
			closer: db.Close,
		}, nil

	case config.StoreMySQL:
		models := append(room.GormModels(), user.GormModels()...)
		db, err := store.InitMySQL(cfg.Mysql.DSN, models...)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		return &stores{
			rooms:  room.NewGormRepository(db),
			users:  user.NewGormRepository(db),
			probe:  sqlDB.PingContext,
			closer: func(context.Context) error { return closeGorm(db) },
		}, nil

	case config.StoreMemory:
		log.Println("using in-memory store, data is lost on restart")
		return &stores{
			rooms:  room.NewMemoryRepository(),
			users:  user.NewMemoryRepository(),
			closer: func(context.Context) error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func main() {
	log.Printf("codeweave %s (commit %s, built %s)", buildVersion, buildCommit, buildTime)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg.Redacted())

	st, err := openStores(cfg)
	if err != nil {
		log.Fatalf("open store failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// presence, fan-out and room reads go through redis when it is configured,
	// so several instances can serve the same room
	var (
		rdb           *redis.Client
		presenceStore presence.Store = presence.NewMemoryStore()
		redisProbe    handlers.Probe
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		presenceStore = cache.NewRedisPresence(rdb, cfg.Redis.PresenceTTL)
		st.rooms = cache.NewRoomCache(st.rooms, rdb)
		redisProbe = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	rooms := room.NewService(st.rooms)

	authOpts := []authservice.Option{}
	if cfg.Auth.Google.Verify {
		authOpts = append(authOpts, authservice.WithVerifier(
			authservice.NewGoogleVerifier(cfg.Auth.Google.TokenInfoURL, cfg.Auth.Google.ClientID, nil)))
	}
	auth := authservice.NewService(st.users, authservice.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), authOpts...)

	tracker := presence.NewTracker(presenceStore, cfg.Relay.MaxParticipants)

	checkpointer := collab.NewCheckpointer(rooms, cfg.Relay.CheckpointInterval, collab.NewSemaphoreControl(8))
	go checkpointer.Run(ctx)

	sinks := []collab.EditSink{checkpointer}
	var (
		producer   sarama.SyncProducer
		dispatcher *collab.KafkaDispatcher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = collab.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		dispatcher = collab.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			collab.NewSemaphoreControl(100),
			collab.DefaultKafkaDispatcherOptions(),
		)
		sinks = append(sinks, dispatcher)
	}

	hubOpts := []ws.HubOption{
		ws.WithSinks(sinks...),
		ws.WithPending(checkpointer),
		ws.WithSendQueue(cfg.Relay.SendQueue),
	}
	if rdb != nil {
		hubOpts = append(hubOpts, ws.WithBus(cache.NewRedisBus(rdb)))
	}
	hub := ws.NewHub(tracker, rooms, hubOpts...)

	if rdb != nil {
		ready, done := cache.NewRedisBus(rdb).Subscribe(ctx, hub.Deliver)
		select {
		case <-ready:
		case err := <-done:
			log.Fatalf("subscribe relay channel failed: %v", err)
		}
		go func() {
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("relay subscription ended: %v", err)
			}
		}()
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:      auth,
		Rooms:     rooms,
		Tracker:   tracker,
		Assistant: assistant.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, nil),
		Relay:     ws.NewManager(hub, cfg.Running.AllowedOrigins),
		Probes: map[string]handlers.Probe{
			"store": st.probe,
			"redis": redisProbe,
		},
		Connections: hub.Connections,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: router,
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Shutdown.Timeout,
		map[string]gfshutdown.Operation{
			// a single operation: the steps below must run in this order
			"codeweave": func(ctx context.Context) error {
				var errs []error
				if err := srv.Shutdown(ctx); err != nil {
					errs = append(errs, fmt.Errorf("http shutdown: %w", err))
				}
				if err := hub.Close(ctx); err != nil {
					errs = append(errs, fmt.Errorf("hub close: %w", err))
				}
				cancel()
				if err := checkpointer.Flush(ctx); err != nil {
					errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
				}
				if dispatcher != nil {
					if err := dispatcher.Close(ctx); err != nil {
						errs = append(errs, fmt.Errorf("kafka dispatcher: %w", err))
					}
					if err := producer.Close(); err != nil {
						errs = append(errs, fmt.Errorf("kafka producer: %w", err))
					}
				}
				if rdb != nil {
					if err := rdb.Close(); err != nil {
						errs = append(errs, fmt.Errorf("redis: %w", err))
					}
				}
				if err := st.closer(ctx); err != nil {
					errs = append(errs, fmt.Errorf("store: %w", err))
				}
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	log.Printf("codeweave exited with code: %d", exitCode)
	os.Exit(exitCode)
}
