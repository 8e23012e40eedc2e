package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/collab-service/internal/assistant"
	"github.com/weiawesome/wes-io-live/collab-service/internal/auth"
	"github.com/weiawesome/wes-io-live/collab-service/internal/config"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	collabgrpc "github.com/weiawesome/wes-io-live/collab-service/internal/grpc"
	"github.com/weiawesome/wes-io-live/collab-service/internal/handler"
	"github.com/weiawesome/wes-io-live/collab-service/internal/hub"
	"github.com/weiawesome/wes-io-live/collab-service/internal/llm"
	"github.com/weiawesome/wes-io-live/collab-service/internal/registry"
	"github.com/weiawesome/wes-io-live/collab-service/internal/service"
	"github.com/weiawesome/wes-io-live/collab-service/internal/store"
	"github.com/weiawesome/wes-io-live/collab-service/internal/supervisor"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/database"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/pubsub"
)

func main() {
	configPath := flag.String("config", "./config", "directory containing config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(cfg.LogOptions())
	l := pkglog.L()

	if err := run(cfg); err != nil {
		l.Fatal().Err(err).Msg("collab service exited")
	}
}

func run(cfg *config.Config) error {
	l := pkglog.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting collab service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is shared by the project cache, the room registry and the redis
	// event publisher.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	// Project store
	projects, closeStore, err := newProjectStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	// Credential verification
	jwtManager, err := newJWTManager(cfg.Auth)
	if err != nil {
		return err
	}
	authenticator := auth.NewAuthenticator(projects, auth.NewJWTVerifier(jwtManager))

	// AI provider
	completer, err := newCompleter(cfg.AI)
	if err != nil {
		return err
	}

	// Room registry
	var reg registry.Registry = registry.Noop{}
	if rdb != nil {
		reg = registry.NewRedisRegistry(rdb, registry.Options{
			Prefix:            cfg.Redis.RegistryPrefix,
			AdvertiseAddress:  cfg.GRPC.AdvertiseAddress,
			KeyTTL:            cfg.Redis.KeyTTL,
			HeartbeatInterval: cfg.Redis.HeartbeatInterval,
		})
	}

	// Event publisher
	var publisher pubsub.Publisher
	if cfg.Events.Driver == "redis" && rdb != nil {
		publisher = pubsub.NewRedisPublisherFromClient(rdb)
	} else {
		publisher, err = pubsub.NewPublisher(cfg.PubSubOptions())
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
	}
	l.Info().Str("driver", cfg.Events.Driver).Msg("event publisher ready")

	// Hub and service
	wsHub := hub.NewHub(cfg.WebSocket.SendBuffer)
	sup := supervisor.New()

	opts := service.Options{
		Hub:           wsHub,
		Supervisor:    sup,
		Registry:      reg,
		Publisher:     publisher,
		ChannelPrefix: cfg.Events.ChannelPrefix,
		NodeAddress:   cfg.GRPC.AdvertiseAddress,
		Completer:     completer,
		AITimeout:     cfg.AI.Timeout,
		TriggerMarker: cfg.AI.TriggerMarker,
	}
	collabSvc := service.NewCollabService(opts)

	// gRPC health server
	grpcServer, err := collabgrpc.NewServer(fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port), l)
	if err != nil {
		return err
	}

	// HTTP server
	wsHandler := handler.NewWSHandler(authenticator, collabSvc, cfg.WebSocket)
	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: handler.NewRouter(handler.RouterOptions{
			Logger:         l,
			WS:             wsHandler,
			Service:        collabSvc,
			Validator:      jwtManager,
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run()
		return nil
	})

	if err := collabSvc.Start(gctx); err != nil {
		return fmt.Errorf("failed to start collab service: %w", err)
	}

	g.Go(grpcServer.Serve)

	g.Go(func() error {
		l.Info().Str("address", server.Addr).Msg("collab service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	grpcServer.SetServing(true)

	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down collab service")
		grpcServer.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop closes every WebSocket, which lets their hijacked handlers
		// return before the HTTP server drains.
		if err := collabSvc.Stop(shutdownCtx); err != nil {
			l.Error().Err(err).Msg("collab service stopped with errors")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			l.Error().Err(err).Msg("http server forced to shutdown")
		}
		grpcServer.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	l.Info().Msg("collab service stopped")
	return nil
}

func newProjectStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (store.ProjectStore, func(), error) {
	l := pkglog.L()

	var projects store.ProjectStore
	var closeFn func()

	switch cfg.ProjectStore.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
		defer cancel()
		ms, err := store.NewMongoProjectStore(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		l.Info().Str("database", cfg.Mongo.Database).Str("collection", cfg.Mongo.Collection).Msg("connected to mongodb")
		projects = ms
		closeFn = func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Close(closeCtx); err != nil {
				l.Warn().Err(err).Msg("failed to close mongodb client")
			}
		}

	default:
		db, err := database.New(cfg.DatabaseOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := database.AutoMigrate(db, &domain.ProjectModel{}); err != nil {
				return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		l.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")
		projects = store.NewGormProjectStore(db)
		closeFn = func() {
			if err := database.Close(db); err != nil {
				l.Warn().Err(err).Msg("failed to close database")
			}
		}
	}

	if rdb != nil {
		projects = store.NewCachedProjectStore(projects, store.NewRedisProjectCache(rdb, cfg.Redis.CachePrefix), cfg.Redis.CacheTTL)
	}
	return projects, closeFn, nil
}

func newJWTManager(cfg config.AuthConfig) (*jwt.Manager, error) {
	opts := jwt.Options{
		Secret: cfg.JWTSecret,
		Issuer: cfg.Issuer,
		Leeway: cfg.Leeway,
	}
	if cfg.PublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read jwt public key: %w", err)
		}
		opts.PublicKeyPEM = pem
	}
	m, err := jwt.NewManager(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt manager: %w", err)
	}
	return m, nil
}

// newCompleter returns nil when AI is disabled.
func newCompleter(cfg config.AIConfig) (assistant.Completer, error) {
	l := pkglog.L()

	client, err := llm.New(llm.Options{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		MaxTokens:    cfg.MaxTokens,
		SystemPrompt: cfg.SystemPrompt,
	})
	if errors.Is(err, llm.ErrNoProvider) {
		l.Info().Msg("ai provider disabled, triggers will be ignored")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create ai client: %w", err)
	}
	l.Info().Str("provider", cfg.Provider).Str("model", client.ModelName()).Msg("ai provider ready")
	return client, nil
}
