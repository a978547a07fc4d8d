package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/chat"
	"roomchat-service/internal/config"
	"roomchat-service/internal/db"
	"roomchat-service/internal/handlers"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/rabbitmq"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/tracing"
	"roomchat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if cfg.EnableTracing {
		shutdown, err := tracing.Setup(context.Background(), cfg.OTLPEndpoint, "roomchat-service", cfg.Environment)
		if err != nil {
			log.Fatalf("failed to set up tracing: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s", rabbitmq.Mode(publisher))

	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.roomchat", "roomchat-service", cfg.Environment)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	directoryRepo := repositories.NewDirectoryRepo(database)
	channelRepo := repositories.NewChannelRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	chatService := chat.NewService(directoryRepo, channelRepo, messageRepo)

	hub := ws.NewHub()
	gateway := ws.NewGateway(hub, chatService, verifier)
	chatHandler := handlers.NewChatHandler(chatService, hub)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("roomchat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chat/room", authMiddleware, chatHandler.GetRoomChannel)
	router.GET("/chat/room/messages", authMiddleware, chatHandler.GetRoomMessages)
	router.POST("/chat/room/messages", authMiddleware, chatHandler.PostRoomMessage)

	router.GET("/ws/chat/room", gateway.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.EnableDebug)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
