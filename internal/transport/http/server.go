package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "clipstream/internal/app"
	"clipstream/internal/bootstrap"
	"clipstream/internal/cache"
	"clipstream/internal/pkg/logger"
	"clipstream/internal/pkg/token"
	"clipstream/internal/platform/rabbitmq"
	"clipstream/internal/repository"
	"clipstream/internal/transport/http/handler"
	"clipstream/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(logger.RequestLogger(), logger.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	tokens := token.NewManager(
		app.Config.Auth.AccessTokenSecret,
		app.Config.Auth.RefreshTokenSecret,
		time.Duration(app.Config.Auth.AccessExpireMinute)*time.Minute,
		time.Duration(app.Config.Auth.RefreshExpireHour)*time.Hour,
	)

	userRepo := repository.NewUserRepository(app.MySQL)
	eventRepo := repository.NewAuthEventRepository(app.MySQL)
	publisher := rabbitmq.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.AuthEventQueue)
	profiles := cache.NewUserCache(app.Redis, time.Duration(app.Config.Redis.ProfileTTLSeconds)*time.Second)
	authService := appsvc.NewAuthService(userRepo, tokens, app.Uploader, publisher, profiles)

	authHandler := handler.NewAuthHandler(authService, app.Config.Auth, app.Config.Upload.TmpDir)
	auditHandler := handler.NewAuditHandler(eventRepo)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", middleware.AuthJWT(tokens), authHandler.Logout)
	authGroup.GET("/me", middleware.AuthJWT(tokens), authHandler.Me)

	userGroup := v1.Group("/users")
	userGroup.Use(middleware.AuthJWT(tokens))
	userGroup.GET("/:id/events", auditHandler.ListEvents)

	return router
}
