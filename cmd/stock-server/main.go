package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/api"
	"github.com/MorseWayne/stock_guard/internal/breaker"
	"github.com/MorseWayne/stock_guard/internal/cache"
	"github.com/MorseWayne/stock_guard/internal/config"
	"github.com/MorseWayne/stock_guard/internal/database"
	"github.com/MorseWayne/stock_guard/internal/logger"
	mw "github.com/MorseWayne/stock_guard/internal/middleware"
	"github.com/MorseWayne/stock_guard/internal/mq"
	"github.com/MorseWayne/stock_guard/internal/repo"
	"github.com/MorseWayne/stock_guard/internal/retry"
	"github.com/MorseWayne/stock_guard/internal/service"
)

// AppDependencies 包含应用的所有依赖
type AppDependencies struct {
	StockHandler  *api.StockHandler
	HealthHandler *api.HealthHandler
	AlertCloser   func() error
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %v", err)
	}
	return cfg, lg, nil
}

// initDatabase 初始化数据库连接并执行迁移
// 迁移在 HTTP 服务器启动前完成，确保处理请求时表结构已就绪
func initDatabase(cfg *config.Config, lg *zap.Logger) (*database.DB, error) {
	db, err := database.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	lg.Sugar().Infow("using migrations directory", "path", cfg.Migrations.Dir)
	if err := db.RunMigrations(cfg.Migrations.Dir); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %v", err)
	}
	return db, nil
}

// initCache 初始化缓存实例，Redis 不可用时降级为内存缓存
func initCache(cfg *config.Config, lg *zap.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		lg.Sugar().Infow("cache disabled")
		return cache.NewNullCache()
	}

	switch cfg.Cache.Type {
	case "redis":
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		redisCache, err := cache.NewRedisCache(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
			return cache.NewMemoryCache()
		}
		lg.Sugar().Infow("cache enabled", "type", "redis", "addr", redisAddr, "ttl", cfg.Cache.TTL)
		return redisCache
	case "memory":
		lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
		return cache.NewMemoryCache()
	default:
		lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
		return cache.NewMemoryCache()
	}
}

// initAlertPublisher 初始化低库存告警发布器；MQ 不可用时降级为空实现
func initAlertPublisher(cfg *config.Config, lg *zap.Logger) mq.AlertPublisher {
	if !cfg.MQ.Enabled {
		lg.Sugar().Infow("alert publisher disabled")
		return mq.NoopAlertPublisher{}
	}

	publisher, err := mq.NewRabbitAlertPublisher(cfg.MQ.URL, cfg.MQ.Exchange, lg)
	if err != nil {
		// 告警是旁路能力，MQ 连不上不阻塞启动
		lg.Sugar().Warnw("failed to connect to RabbitMQ, alerts will be log-only", "error", err)
		return mq.NoopAlertPublisher{}
	}
	return publisher
}

// initDependencies 初始化依赖注入链：仓储装饰链 -> 服务 -> API处理器。
// 装饰顺序（由内向外）：MySQL -> 重试 -> 熔断 -> 缓存。
// 熔断器由这里显式构造并注入，每个逻辑下游一个实例，不使用包级单例。
func initDependencies(cfg *config.Config, db *database.DB, cacheInstance cache.Cache, lg *zap.Logger) *AppDependencies {
	registry := breaker.NewRegistry(lg)
	dbBreaker := registry.Register("database", breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		MonitoringPeriod: cfg.Breaker.MonitoringPeriod,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	})

	retryCfg := retry.Config{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay}

	var productRepo repo.ProductRepository
	productRepo = repo.NewProductRepository(db.DB)
	productRepo = repo.NewResilientProductRepository(productRepo, retryCfg, lg)
	productRepo = repo.NewGuardedProductRepository(productRepo, dbBreaker)
	if cfg.Cache.Enabled {
		productRepo = repo.NewCachedProductRepository(productRepo, cacheInstance, cfg.Cache.TTL)
	}

	alerts := initAlertPublisher(cfg, lg)
	stockService := service.NewStockService(productRepo, alerts, lg, cfg.Stock.LowStockThreshold)

	return &AppDependencies{
		StockHandler:  api.NewStockHandler(stockService, lg),
		HealthHandler: api.NewHealthHandler(registry, cfg.App.Version, lg),
		AlertCloser:   alerts.Close,
	}
}

// setupRoutes 设置路由和中间件
func setupRoutes(cfg *config.Config, deps *AppDependencies, lg *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// 健康检查与运维端点
	mux.HandleFunc("/healthz", deps.HealthHandler.Healthz)
	mux.HandleFunc("/api/v1/admin/circuit-breakers", requireMethod(http.MethodGet, deps.HealthHandler.GetCircuitBreakers))
	mux.HandleFunc("/api/v1/admin/circuit-breakers/reset", requireMethod(http.MethodPost, deps.HealthHandler.ResetCircuitBreakers))

	// 库存操作
	mux.HandleFunc("/api/v1/stock/validate", requireMethod(http.MethodPost, deps.StockHandler.ValidateStock))
	mux.HandleFunc("/api/v1/stock/validate-batch", requireMethod(http.MethodPost, deps.StockHandler.ValidateBatch))
	mux.HandleFunc("/api/v1/stock/reserve", requireMethod(http.MethodPost, deps.StockHandler.ReserveStock))
	mux.HandleFunc("/api/v1/stock/decrement", requireMethod(http.MethodPost, deps.StockHandler.DecrementStock))
	mux.HandleFunc("/api/v1/stock/increment", requireMethod(http.MethodPost, deps.StockHandler.IncrementStock))
	mux.HandleFunc("/api/v1/stock/alerts/low-stock", requireMethod(http.MethodGet, deps.StockHandler.GetLowStockAlerts))

	// 中间件链：请求进入时执行顺序为 access log → timeout → recovery → request ID
	handler := mw.RequestID(mux)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.AccessLog(lg)(handler)
	return handler
}

// requireMethod 限定HTTP方法
func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// startServer 启动服务器并处理优雅关闭
func startServer(cfg *config.Config, handler http.Handler, lg *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	select {
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			lg.Sugar().Fatalw("server error", "err", err)
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	lg.Sugar().Infow("server exited")
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}

	db, err := initDatabase(cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize database", "err", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			lg.Sugar().Errorw("failed to close database connection", "err", err)
		}
	}()

	cacheInstance := initCache(cfg, lg)
	deps := initDependencies(cfg, db, cacheInstance, lg)
	defer func() {
		if err := deps.AlertCloser(); err != nil {
			lg.Sugar().Errorw("failed to close alert publisher", "err", err)
		}
	}()

	handler := setupRoutes(cfg, deps, lg)
	startServer(cfg, handler, lg)
}
