package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-admin-api/internal/handler"
	"github.com/noah-isme/campus-admin-api/internal/repository"
	"github.com/noah-isme/campus-admin-api/internal/router"
	"github.com/noah-isme/campus-admin-api/internal/service"
	"github.com/noah-isme/campus-admin-api/pkg/cache"
	"github.com/noah-isme/campus-admin-api/pkg/config"
	"github.com/noah-isme/campus-admin-api/pkg/cookie"
	"github.com/noah-isme/campus-admin-api/pkg/database"
	"github.com/noah-isme/campus-admin-api/pkg/logger"
	"github.com/noah-isme/campus-admin-api/pkg/security"
)

// @title Campus Admin API
// @version 1.0.0
// @description Cookie-based session authentication and identity administration
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.Pinger{}

	store, db, err := openStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}
	checks["storage"] = store

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// the identity cache is optional; the fast path falls back to storage
			logr.Warn("redis unavailable, identity cache disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	if redisClient != nil {
		checks["cache"] = cacheRepo
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.IdentityTTL, logr, redisClient != nil)
	identityCache := service.NewIdentityCache(cacheSvc, store, cfg.Cache.IdentityTTL, logr)

	codec, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
	})
	if err != nil {
		logr.Fatal("invalid token configuration", zap.Error(err))
	}
	hasher := security.NewHasher(cfg.Session.BcryptCost)
	validate := validator.New()

	audit := service.NewAuditDispatcher(store, metricsSvc, logr, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
	})
	audit.Start(context.Background())

	sessions := service.NewSessionStore(store, cfg.Session.Retention, metricsSvc, logr)
	engine := service.NewRotationEngine(store, sessions, identityCache, codec, hasher, audit, metricsSvc, logr)
	authSvc := service.NewAuthService(store, engine, sessions, hasher, validate, audit, metricsSvc, logr)
	userSvc := service.NewUserService(store, sessions, identityCache, validate, audit, logr)

	if cfg.Bootstrap.Enabled() {
		if _, err := authSvc.BootstrapSuperAdmin(ctx, cfg.Bootstrap.Email, cfg.Bootstrap.Password, cfg.Bootstrap.Name); err != nil {
			logr.Fatal("failed to bootstrap super admin", zap.Error(err))
		}
	}

	cookies := cookie.NewPolicy(cfg.IsProduction(), cfg.Cookie.Secure, cfg.Cookie.SameSite, cfg.Cookie.Domain, cfg.Cookie.Path)

	r, err := router.New(router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		EnableDocs:     !cfg.IsProduction(),
	}, router.Dependencies{
		Engine:  engine,
		Auth:    authSvc,
		Users:   userSvc,
		Metrics: metricsSvc,
		Cookies: cookies,
		Checks:  checks,
		Logger:  logr,
	})
	if err != nil {
		logr.Fatal("failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	audit.Stop(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (repository.IdentityStore, *sqlx.DB, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logr.Warn("using in-memory storage; sessions are lost on restart")
		return repository.NewMemoryIdentityRepository(), nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewIdentityRepository(db), db, nil
}
