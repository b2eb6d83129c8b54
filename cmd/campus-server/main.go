package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/campus-gateway/internal/dispatch"
	"github.com/noah-isme/campus-gateway/internal/handler"
	"github.com/noah-isme/campus-gateway/internal/repository"
	"github.com/noah-isme/campus-gateway/internal/server"
	"github.com/noah-isme/campus-gateway/internal/service"
	"github.com/noah-isme/campus-gateway/pkg/cache"
	"github.com/noah-isme/campus-gateway/pkg/config"
	"github.com/noah-isme/campus-gateway/pkg/database"
	"github.com/noah-isme/campus-gateway/pkg/logger"
	"github.com/noah-isme/campus-gateway/pkg/middleware/cors"
)

const shutdownTimeout = 30 * time.Second

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logr.Info("database migrations applied")
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	if err := metricsSvc.RegisterDBStats(db.DB, cfg.Database.Name); err != nil {
		logr.Warn("failed to register db stats collector", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Profiles.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, profile cache disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Profiles.CacheTTL, logr, redisClient != nil)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewStudentProfileRepository(db)
	requestRepo := repository.NewChangeRequestRepository(db)
	store := repository.NewEnrollmentStore(db, userRepo, requestRepo, profileRepo,
		repository.WithAcquireTimeout(cfg.Database.AcquireTimeout))

	authSvc := service.NewAuthService(userRepo, store, validate, logr, service.AuthConfig{
		TokenSecret: cfg.Auth.TokenSecret,
		TokenTTL:    cfg.Auth.TokenTTL,
		Issuer:      cfg.Auth.Issuer,
	})
	profileSvc := service.NewStudentProfileService(profileRepo, cacheSvc, cfg.Profiles.CacheTTL, logr)
	invalidator := service.WithProfileInvalidator(profileSvc)
	if cacheSvc.Enabled() {
		invalidations := service.NewProfileInvalidationQueue(profileSvc, time.Second, logr)
		invalidations.Start(ctx)
		defer invalidations.Stop()
		invalidator = service.WithProfileInvalidator(invalidations)
	}
	requestSvc := service.NewChangeRequestService(store, logr, invalidator)

	dispatcher := dispatch.New(authSvc, validate, metricsSvc, logr)
	handler.NewAuthHandler(authSvc).Routes(dispatcher)
	handler.NewEnrollmentHandler(requestSvc, profileSvc).Routes(dispatcher)

	sessionOpts := server.SessionOptionsFromConfig(cfg.Session)
	acceptor := server.NewAcceptor(dispatcher, sessionOpts, cfg.Session.MaxFrameBytes, metricsSvc, logr)

	adminCfg := server.AdminConfig{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Checks: map[string]server.ReadinessCheck{
			"postgres": db.PingContext,
		},
	}
	if redisClient != nil {
		adminCfg.Checks["redis"] = cacheRepo.Ping
	}
	g, gctx := errgroup.WithContext(ctx)

	var wsAcceptor *server.WebSocketAcceptor
	if cfg.WebSocket.Enabled {
		wsAcceptor = server.NewWebSocketAcceptor(gctx, dispatcher, sessionOpts, cfg.Session.MaxFrameBytes,
			cors.OriginChecker(cfg.WebSocket.AllowedOrigins), metricsSvc, logr)
		adminCfg.WebSocket = wsAcceptor
		adminCfg.WebSocketPath = cfg.WebSocket.Path
	}
	admin := server.NewAdminServer(adminCfg, metricsSvc, logr)

	tcpLn, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	httpLn, err := net.Listen("tcp", adminCfg.Addr)
	if err != nil {
		_ = tcpLn.Close()
		return fmt.Errorf("listen %s: %w", adminCfg.Addr, err)
	}

	logr.Info("campus gateway starting",
		zap.String("env", cfg.Env),
		zap.String("listen_addr", tcpLn.Addr().String()),
		zap.String("admin_addr", httpLn.Addr().String()),
		zap.Bool("websocket", cfg.WebSocket.Enabled),
		zap.Bool("profile_cache", cacheSvc.Enabled()),
	)

	g.Go(func() error { return acceptor.Serve(gctx, tcpLn) })
	g.Go(func() error { return admin.Serve(httpLn) })
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logr.Warn("admin shutdown", zap.Error(err))
		}
		if err := acceptor.Shutdown(shutdownCtx); err != nil {
			logr.Warn("sessions did not drain", zap.Error(err))
		}
		if wsAcceptor != nil {
			if err := wsAcceptor.Shutdown(shutdownCtx); err != nil {
				logr.Warn("websocket sessions did not drain", zap.Error(err))
			}
		}
		return nil
	})
	return g.Wait()
}
