package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/realm-live/internal/config"
	"github.com/weiawesome/realm-live/internal/domain"
	opsgrpc "github.com/weiawesome/realm-live/internal/grpc"
	"github.com/weiawesome/realm-live/internal/handler"
	"github.com/weiawesome/realm-live/internal/hub"
	"github.com/weiawesome/realm-live/internal/metrics"
	"github.com/weiawesome/realm-live/internal/registry"
	"github.com/weiawesome/realm-live/internal/repository"
	"github.com/weiawesome/realm-live/internal/service"
	"github.com/weiawesome/realm-live/pkg/database"
	"github.com/weiawesome/realm-live/pkg/jwt"
	pkglog "github.com/weiawesome/realm-live/pkg/log"
	"github.com/weiawesome/realm-live/pkg/middleware"
	"github.com/weiawesome/realm-live/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting realm-live")

	if watching, err := config.WatchLogLevel(func(level string) {
		pkglog.SetLevel(level)
		l := pkglog.L()
		l.Info().Str("level", level).Msg("log level reloaded")
	}); err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
	} else if watching {
		logger.Debug().Msg("watching config file for log level changes")
	}

	// Database
	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)
	if err := database.AutoMigrate(db, domain.AllModels()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	tokens, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Optional Redis presence mirror
	var (
		observer hub.Observer
		presence *registry.RedisPresence
	)
	if cfg.Presence.Enabled {
		presence, err = registry.NewRedisPresence(cfg.Presence)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create redis presence")
		}
		defer presence.Close()
		observer = presence
		logger.Info().Str("address", cfg.Presence.Address).Msg("presence mirror enabled")
	}

	// Event sink
	sink, err := pubsub.NewPublisher(cfg.EventSink)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.EventSink.Driver).Msg("failed to create event sink")
	}
	defer sink.Close()

	// Repositories
	users := repository.NewGormUserRepository(db)
	projects := repository.NewGormProjectRepository(db)
	tasks := repository.NewGormTaskRepository(db)
	notifications := repository.NewGormNotificationRepository(db)

	// Hub and services
	wsHub := hub.NewHub(observer, m)
	dispatcher := service.NewDispatcher(projects, notifications, wsHub, sink, m)
	workspace := service.NewWorkspaceService(users, projects, tasks, notifications, dispatcher, wsHub, tokens)
	connections := service.NewConnectionService(wsHub, service.NewJWTVerifier(tokens), m)

	// Router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), pkglog.GinMiddleware(logger, "/health", "/metrics"))
	handler.RegisterOpsRoutes(r, reg)
	handler.NewHandler(workspace, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(r)
	handler.NewWSHandler(connections, cfg.WebSocket).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return wsHub.Run(gctx) })
	g.Go(func() error { return dispatcher.RunExports(gctx) })

	if presence != nil {
		g.Go(func() error { return presence.Run(gctx) })
	}

	if cfg.GRPC.Enabled {
		grpcServer := opsgrpc.NewServer(fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port), logger)
		grpcServer.TrackHub(wsHub.Done())
		g.Go(func() error { return grpcServer.Serve(gctx) })
	}

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("realm-live listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down realm-live")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("realm-live stopped with error")
		return
	}
	logger.Info().Msg("realm-live stopped")
}
