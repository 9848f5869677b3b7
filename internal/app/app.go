package app

import (
	"context"
	"fmt"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/config"
	"roomchat/internal/repository"
	"roomchat/internal/service"
	"roomchat/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// App holds the wired dependencies of one server process.
type App struct {
	Config *config.Config
	Log    *zap.Logger

	Redis *redis.Client
	Mongo *mongo.Client

	Hub *ws.Hub
	Bus *ws.Bus

	AuthService  *service.AuthService
	AdminService *service.AdminService
	AbuseService *service.AbuseService
	ChatService  *service.ChatService
	AuditService *service.AuditService
	ResetService *service.ResetService
}

// NewLogger builds the process logger.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// New connects to the stores and wires every service. MongoDB is optional;
// without it audit entries are only logged.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("connected to redis")

	a := &App{Config: cfg, Log: log, Redis: rdb}

	var auditRepo repository.AuditRepo
	if cfg.MongoURI != "" {
		client, err := repository.Connect(ctx, cfg.MongoURI)
		if err != nil {
			rdb.Close()
			return nil, err
		}
		a.Mongo = client
		auditRepo = repository.NewAuditRepo(client.Database(cfg.MongoDB))

		idxCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := auditRepo.EnsureIndexes(idxCtx); err != nil {
			log.Warn("audit indexes", zap.Error(err))
		}
		cancel()
		log.Info("connected to mongodb", zap.String("db", cfg.MongoDB))
	} else {
		log.Info("MONGO_URI not set, audit entries go to the log only")
	}

	// Caches
	tokens := cache.NewTokenCache(rdb)
	messages := cache.NewMessageLog(rdb, cfg.History.Limit, cache.EventChannel)
	abuse := cache.NewAbuseCache(rdb)
	system := cache.NewSystemCache(rdb)

	// Real-time fan-out
	a.Hub = ws.NewHub(log.Named("hub"))
	a.Bus = ws.NewBus(rdb, cache.EventChannel, a.Hub, log.Named("bus"))

	// Services
	a.AuditService = service.NewAuditService(auditRepo, log.Named("audit"))
	a.AuthService = service.NewAuthService(tokens, service.AuthConfig{
		Secret:          cfg.SecretKey,
		TTL:             cfg.Token.TTL,
		MaxAge:          cfg.Token.MaxAge,
		ClockSkew:       cfg.Token.ClockSkew,
		ReissueCooldown: cfg.Token.ReissueCooldown,
	}, log.Named("auth"))
	a.AdminService = service.NewAdminService(cfg.AdminPass, cfg.JWTSecret)
	a.AbuseService = service.NewAbuseService(abuse, cfg.Abuse, a.AuditService, log.Named("abuse"))
	a.ChatService = service.NewChatService(messages, a.AuthService, a.AbuseService, a.AdminService, a.AuditService, log.Named("chat"))
	a.ResetService = service.NewResetService(system, messages, service.ResetConfig{
		Location: cfg.Reset.Location(),
		Schedule: cfg.Reset.Schedule,
		LockTTL:  cfg.Reset.LockTTL,
	}, a.AuditService, log.Named("reset"))

	// Inject broadcaster (the bus implements service.Broadcaster)
	a.AuthService.SetBroadcaster(a.Bus)
	a.AbuseService.SetBroadcaster(a.Bus)
	a.ResetService.SetBroadcaster(a.Bus)

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			firstErr = fmt.Errorf("close bus: %w", err)
		}
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("disconnect mongo: %w", err)
		}
	}
	if err := a.Redis.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close redis: %w", err)
	}
	return firstErr
}
