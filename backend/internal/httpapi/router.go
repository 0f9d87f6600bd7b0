package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"codeweave/backend/internal/assistant"
	"codeweave/backend/internal/authservice"
	"codeweave/backend/internal/httpapi/handlers"
	"codeweave/backend/internal/httpapi/middleware"
	"codeweave/backend/internal/presence"
	"codeweave/backend/internal/room"
	"codeweave/backend/internal/ws"
)

type Deps struct {
	Auth      *authservice.Service
	Rooms     *room.Service
	Tracker   *presence.Tracker
	Assistant *assistant.Client
	Relay     *ws.Manager
	Probes    map[string]handlers.Probe
	// open websocket count for /healthz
	Connections func() int
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// any origin, including "null" from file:// pages; auth is by bearer token, not cookies
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	authH := handlers.NewAuthHandler(d.Auth)
	roomH := handlers.NewRoomHandler(d.Rooms, d.Tracker)
	aiH := handlers.NewAIHandler(d.Assistant)
	healthH := handlers.NewHealthHandler(d.Probes, d.Connections)

	requireAuth := middleware.AuthMiddleware(d.Auth)
	optionalAuth := middleware.OptionalAuth(d.Auth)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.POST("/google", authH.Google)
		auth.GET("/me", requireAuth, authH.Me)

		rooms := api.Group("/room", optionalAuth)
		rooms.POST("/create", roomH.Create)
		rooms.POST("/join", roomH.Join)
		rooms.GET("/user/:userId", roomH.ListByUser)
		rooms.GET("/:roomId/participants", roomH.Participants)

		api.POST("/ai/chat", aiH.Chat)
	}

	r.GET("/healthz", healthH.Health)
	if d.Relay != nil {
		r.GET("/ws", optionalAuth, d.Relay.WebSocketConnect)
	}
	return r
}
