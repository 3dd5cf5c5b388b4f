package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-admin-api/api/swagger"
	"github.com/noah-isme/campus-admin-api/internal/handler"
	"github.com/noah-isme/campus-admin-api/internal/middleware"
	"github.com/noah-isme/campus-admin-api/internal/models"
	"github.com/noah-isme/campus-admin-api/internal/service"
	"github.com/noah-isme/campus-admin-api/pkg/cookie"
	"github.com/noah-isme/campus-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-admin-api/pkg/middleware/requestid"
)

// Options carries the HTTP-level settings taken from configuration.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	TrustedProxies []string
	EnableDocs     bool
}

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Engine  *service.RotationEngine
	Auth    *service.AuthService
	Users   *service.UserService
	Metrics *service.MetricsService
	Cookies cookie.Policy
	Checks  map[string]handler.Pinger
	Logger  *zap.Logger
}

// New builds the gin engine with every route mounted.
func New(opts Options, deps Dependencies) (*gin.Engine, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	// nil trusts no proxy, so ClientIP is the socket address unless proxies are configured
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics, "/metrics"))

	metricsHandler := handler.NewMetricsHandler(deps.Metrics, deps.Checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authenticate := middleware.Authenticate(deps.Engine, deps.Cookies)
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Cookies)
	userHandler := handler.NewUserHandler(deps.Users)

	api := r.Group(opts.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", middleware.OptionalAuthenticate(deps.Engine, deps.Cookies), authHandler.Register)
	auth.GET("/logout", authHandler.Logout)

	authProtected := auth.Group("")
	authProtected.Use(authenticate)
	authProtected.GET("/verify-user", authHandler.VerifyUser)
	authProtected.POST("/change-password", authHandler.ChangePassword)
	authProtected.GET("/sessions", authHandler.ListSessions)
	authProtected.DELETE("/sessions/:id", authHandler.RevokeSession)

	users := api.Group("/users")
	users.Use(authenticate)
	users.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), userHandler.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin), "SELF"), userHandler.Get)
	users.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), userHandler.UpdateStatus)

	return r, nil
}
