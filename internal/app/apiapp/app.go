package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avilenka/devmatch/internal/config"
	s3infra "github.com/avilenka/devmatch/internal/infra/s3"
	"github.com/avilenka/devmatch/internal/jobs/cleanup"
	"github.com/avilenka/devmatch/internal/realtime"
	pgrepo "github.com/avilenka/devmatch/internal/repo/postgres"
	redrepo "github.com/avilenka/devmatch/internal/repo/redis"
	authsvc "github.com/avilenka/devmatch/internal/services/auth"
	chatsvc "github.com/avilenka/devmatch/internal/services/chat"
	feedsvc "github.com/avilenka/devmatch/internal/services/feed"
	matchessvc "github.com/avilenka/devmatch/internal/services/matches"
	ratesvc "github.com/avilenka/devmatch/internal/services/rate"
	swipesvc "github.com/avilenka/devmatch/internal/services/swipes"
	userssvc "github.com/avilenka/devmatch/internal/services/users"
	wstransport "github.com/avilenka/devmatch/internal/transport/ws"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := redrepo.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, attachments disabled", zap.Error(err))
	} else {
		s3Client = c
	}

	sessionRepo := redrepo.NewSessionRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)
	presenceRepo := redrepo.NewPresenceRepo(redisClient)
	matchRepo := pgrepo.NewMatchRepo(pool)
	messageRepo := pgrepo.NewMessageRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authService := authsvc.NewService(jwtManager, sessionRepo, cfg.Auth.SessionTTL)
	rateLimiter := ratesvc.NewLimiter(rateRepo, cfg.Swipes.RatePerMinute, cfg.Swipes.RatePer10Seconds)
	userService := userssvc.NewService(userRepo, presenceRepo, 0)

	hub := realtime.NewHub(realtime.HubDependencies{
		Presence: userService,
		Matches:  matchRepo,
		Logger:   log,
	})

	swipeService := swipesvc.NewService(swipesvc.Dependencies{
		Pool:     pool,
		Matches:  matchRepo,
		Users:    userRepo,
		Limiter:  rateLimiter,
		Notifier: hub,
	}, swipesvc.Config{
		UndoWindow: cfg.Swipes.UndoWindow,
	})

	var chatStorage chatsvc.ObjectStorage
	if s3Client != nil {
		chatStorage = chatsvc.NewS3Storage(s3Client, cfg.S3.Bucket)
	}
	chatService := chatsvc.NewService(chatsvc.Dependencies{
		Pool:     pool,
		Messages: messageRepo,
		Matches:  matchRepo,
		Users:    userRepo,
		Storage:  chatStorage,
		Notifier: hub,
	}, chatsvc.Config{
		MaxMessageLen:      cfg.Chat.MaxMessageLen,
		AttachmentMaxBytes: int64(cfg.Chat.AttachmentMaxBytes),
	})
	hub.SetChatSender(chatService)

	matchesService := matchessvc.NewService(matchessvc.Dependencies{
		Matches:  matchRepo,
		Users:    userRepo,
		Messages: messageRepo,
		Presence: presenceRepo,
	})

	feedService := feedsvc.NewService(userRepo, matchRepo, feedsvc.Config{
		DefaultLimit: cfg.Swipes.RecommendLimit,
		MaxLimit:     cfg.Swipes.RecommendMaxLimit,
	})

	cleanupJob := cleanup.New(messageRepo, 30*24*time.Hour, log)
	if chatStorage != nil {
		cleanupJob.AttachStorage(chatStorage)
	}
	go cleanupJob.RunEvery(ctx, time.Hour)

	socketHandler := wstransport.NewHandler(hub, authService, log)

	RegisterRoutes(r, Dependencies{
		AuthService:   authService,
		SwipeService:  swipeService,
		MatchService:  matchesService,
		ChatService:   chatService,
		FeedService:   feedService,
		SocketHandler: socketHandler,
		Logger:        log,
		Config:        cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
