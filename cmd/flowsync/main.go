package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"smartflow/internal/archive"
	"smartflow/internal/client/dexscreener"
	"smartflow/internal/client/nansen"
	"smartflow/internal/config"
	cronrunner "smartflow/internal/cron"
	"smartflow/internal/db"
	"smartflow/internal/flow"
	"smartflow/internal/handler"
	"smartflow/internal/lock"
	"smartflow/internal/logger"
	"smartflow/internal/metrics"
	gormrepository "smartflow/internal/repository/gorm"
	"smartflow/internal/service"
	"smartflow/internal/stream"

	_ "smartflow/docs"
)

func main() {
	// Values already in the environment win over both files.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	cfgPath := os.Getenv("SF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("configuration invalid", zap.Error(err))
	}
	mapping, err := flow.DefaultMapping.Select(cfg.Pipeline.Timeframes)
	if err != nil {
		logger.Fatal("configuration invalid", zap.Error(&config.ConfigurationError{
			Invalid: []string{"pipeline.timeframes: " + err.Error()},
		}))
	}

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)
	if err := db.Ping(dbConn); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}
	store := gormrepository.New(dbConn.Gorm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var locker lock.Locker = lock.NewMemory(cfg.Lock.RetryInterval)
	var redisLock *lock.Redis
	if addr := strings.TrimSpace(cfg.Lock.RedisAddr); addr != "" {
		redisLock = lock.NewRedis(&redis.Options{
			Addr:     addr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		}, "smartflow:lock:", cfg.Lock.RetryInterval)
		defer redisLock.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisLock.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Fatal("redis lock unreachable", zap.String("addr", addr), zap.Error(err))
		}
		locker = redisLock
		logger.Info("using redis bucket lock", zap.String("addr", addr))
	}

	var archiver service.HistoryArchiver
	if dsn := strings.TrimSpace(cfg.Archive.ClickHouseDSN); dsn != "" {
		history, conn, err := openArchive(ctx, dsn)
		if err != nil {
			logger.Warn("history archive disabled", zap.Error(err))
		} else {
			defer conn.Close()
			archiver = history
			logger.Info("history archive enabled")
		}
	}

	m := metrics.New(metrics.DefaultNamespace)
	hub := stream.NewHub(logger)

	nansenClient := nansen.NewClient(&http.Client{Timeout: cfg.Nansen.Timeout}, cfg.Nansen.BaseURL, cfg.Nansen.APIKey)
	dexClient := dexscreener.NewClient(
		&http.Client{Timeout: cfg.DexScreener.Timeout},
		cfg.DexScreener.BaseURL,
		cfg.Pipeline.Chain,
		cfg.DexScreener.Concurrency,
	)

	publisher := &service.Publisher{
		Store:     store,
		Locker:    locker,
		Logger:    logger,
		Metrics:   m,
		LockTTL:   cfg.Pipeline.TickTimeout,
		BatchSize: cfg.Pipeline.InsertBatch,
	}
	refreshService := &service.RefreshService{
		Netflow:   nansenClient,
		Market:    dexClient,
		Publisher: publisher,
		Runs:      store,
		Archive:   archiver,
		Stream:    hub,
		Metrics:   m,
		Logger:    logger,
		Mapping:   mapping,
		Options: service.RefreshOptions{
			Chain:       cfg.Pipeline.Chain,
			PageSize:    cfg.Pipeline.PageSize,
			OrderField:  cfg.Pipeline.OrderField,
			BatchSize:   cfg.DexScreener.BatchSize,
			TickTimeout: cfg.Pipeline.TickTimeout,
		},
	}
	queryService := &service.FlowQueryService{
		Repo:            store,
		Mapping:         mapping,
		FallbackEnabled: cfg.API.FallbackEnabled,
		MaxRows:         cfg.API.MaxRows,
		Metrics:         m,
		Logger:          logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORS())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	if redisLock != nil {
		healthHandler.Locks = redisLock
	}
	healthHandler.Register(engine)
	metricsHandler := &handler.MetricsHandler{Handler: m.Handler()}
	metricsHandler.Register(engine)
	flowsHandler := &handler.FlowsHandler{
		Query:   queryService,
		Refresh: refreshService,
		Stream:  hub,
		Logger:  logger,
	}
	flowsHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	runRefresh := func(ctx context.Context, trigger string) {
		result, err := refreshService.RunOnce(ctx, trigger)
		if err != nil {
			logger.Warn("refresh failed",
				zap.String("trigger", trigger),
				zap.String("run_id", result.RunID),
				zap.String("status", result.Status),
				zap.Error(err),
			)
			return
		}
		logger.Info("refresh done",
			zap.String("trigger", trigger),
			zap.String("run_id", result.RunID),
			zap.String("status", result.Status),
			zap.Int("tokens", result.Tokens),
			zap.Int("rows", result.Rows),
			zap.Bool("joined", result.Joined),
		)
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.Refresh, func(ctx context.Context) {
			runRefresh(ctx, service.TriggerCron)
		})
		if err != nil {
			logger.Fatal("cron register refresh failed", zap.String("spec", cfg.Cron.Refresh), zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.Cron.RunOnStartup {
		go runRefresh(ctx, service.TriggerStartup)
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.Strings("timeframes", mapping.Labels()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func openArchive(ctx context.Context, dsn string) (*archive.HistoryStore, *archive.Conn, error) {
	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, err := archive.NewConn(openCtx, dsn)
	if err != nil {
		return nil, nil, err
	}
	history := archive.NewHistoryStore(conn)
	if err := history.EnsureSchema(openCtx); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return history, conn, nil
}
