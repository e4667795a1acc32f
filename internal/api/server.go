package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/actionartem/taskganttback/internal/api/auth"
	"github.com/actionartem/taskganttback/internal/api/middleware"
	"github.com/actionartem/taskganttback/internal/config"
	"github.com/actionartem/taskganttback/internal/pkg/metrics"
	"github.com/actionartem/taskganttback/internal/pkg/notify"
	"github.com/actionartem/taskganttback/internal/pkg/notifyqueue"
	"github.com/actionartem/taskganttback/internal/pkg/queue"
	"github.com/actionartem/taskganttback/internal/pkg/ratelimit"
	"github.com/actionartem/taskganttback/internal/reminder"
	"github.com/actionartem/taskganttback/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端、通知派发器以及 Gin 路由引擎。
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *gorm.DB
	rdb        *redis.Client
	router     *gin.Engine
	store      *store.Store
	auth       *auth.Handler
	dispatcher notify.Dispatcher
	deliverer  *notify.Deliverer

	memQueue *queue.Queue
	consumer *notifyqueue.Consumer
	sweeper  *reminder.Sweeper
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（可选，用于限流与 Streams 通知队列）
// 3. 构建通知派发链路（内存队列或 Redis Streams）
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.OpenMySQL(cfg.MySQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	st := store.New(db)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	metrics.InitMetrics()

	tg, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.App.NotifyTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	var notifier notify.Notifier
	if tg != nil {
		notifier = tg
	}
	deliverer := notify.NewDeliverer(st, notifier, cfg.App.NotifyTimeout, logger)

	var limiter *ratelimit.RateLimiter
	if rdb != nil && cfg.App.CodeRateLimit > 0 {
		limiter = ratelimit.NewRedisRateLimiter(rdb, logger, "tracker:ratelimit", cfg.App.CodeRateLimit, cfg.App.CodeRateBurst)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		store:     st,
		deliverer: deliverer,
		auth: auth.NewHandler(st, limiter, cfg.Security.JWTSecret, cfg.Telegram.BotUsername,
			cfg.App.CodeTTL, logger),
	}

	if cfg.App.EnableRedisQueue && rdb != nil {
		nq := notifyqueue.NewNotifyQueue(rdb, logger, cfg.App.NotifyStream)
		consumer, err := notifyqueue.NewConsumer(rdb, logger, cfg.App.NotifyStream, cfg.App.NotifyGroup, "")
		if err != nil {
			return nil, fmt.Errorf("notify consumer: %w", err)
		}
		s.consumer = consumer
		s.dispatcher = notifyqueue.NewStreamDispatcher(nq, logger)
	} else {
		s.memQueue = queue.NewQueue(logger, cfg.App.NotifyWorkers, cfg.App.NotifyCapacity)
		s.dispatcher = notify.NewQueueDispatcher(s.memQueue, deliverer)
	}

	if cfg.App.ReminderTime != "" {
		s.sweeper = reminder.NewSweeper(st, s.dispatcher, logger)
	}

	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartBackground 启动通知投递与提醒扫描的后台部分。
func (s *Server) StartBackground(ctx context.Context) error {
	if s.memQueue != nil {
		s.memQueue.Start(ctx)
	}
	if s.consumer != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("PANIC in notify consumer", slog.Any("panic", r))
				}
			}()
			s.consumer.Run(ctx, func(ctx context.Context, ev *notifyqueue.Event) error {
				return s.deliverer.Deliver(ctx, ev.UserID, ev.Text)
			})
		}()
	}
	if s.sweeper != nil {
		if err := s.sweeper.Start(s.cfg.App.ReminderTime); err != nil {
			return fmt.Errorf("start reminder sweeper: %w", err)
		}
	}
	return nil
}

// Close 停止后台组件并关闭数据库与缓存连接。
func (s *Server) Close() error {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.memQueue != nil {
		if err := s.memQueue.ShutdownWithTimeout(10 * time.Second); err != nil {
			s.logger.Warn("notify queue shutdown", slog.String("error", err.Error()))
		}
	}

	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.handleHealth)

	s.router.POST("/auth/login", s.auth.Login)
	s.router.POST("/auth/register-password", s.auth.RegisterPassword)
	s.router.POST("/auth/login-password", s.auth.LoginPassword)
	s.router.POST("/auth/telegram/request", s.auth.TelegramRequest)
	s.router.POST("/auth/telegram/code-from-bot", s.auth.TelegramCodeFromBot)

	s.router.GET("/me", s.handleMe)
	s.router.GET("/users", s.handleListUsers)
	s.router.POST("/users", s.handleCreateUser)
	s.router.PATCH("/users/:id", s.handleUpdateUser)
	s.router.DELETE("/users/:id", s.handleDeleteUser)

	s.router.GET("/tags", s.handleListTags)
	s.router.POST("/tags", s.handleCreateTag)
	s.router.DELETE("/tags/:tagId", s.handleDeleteTag)

	s.router.GET("/tasks", s.handleListTasks)
	s.router.POST("/tasks", s.handleCreateTask)
	s.router.PATCH("/tasks/:id", s.handleUpdateTask)
	s.router.DELETE("/tasks/:id", s.handleDeleteTask)
	s.router.POST("/tasks/:id/tags", s.handleAddTaskTag)
	s.router.DELETE("/tasks/:id/tags/:tagId", s.handleRemoveTaskTag)
}

// handleHealth 存活探针，不触碰任何依赖。
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
