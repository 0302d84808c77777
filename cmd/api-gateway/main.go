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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutorly-api/api/swagger"
	"github.com/noah-isme/tutorly-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tutorly-api/internal/middleware"
	"github.com/noah-isme/tutorly-api/internal/repository"
	"github.com/noah-isme/tutorly-api/internal/service"
	"github.com/noah-isme/tutorly-api/pkg/cache"
	"github.com/noah-isme/tutorly-api/pkg/config"
	"github.com/noah-isme/tutorly-api/pkg/database"
	"github.com/noah-isme/tutorly-api/pkg/events"
	"github.com/noah-isme/tutorly-api/pkg/jobs"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
	"github.com/noah-isme/tutorly-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutorly-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutorly-api/pkg/middleware/requestid"
)

// @title Tutorly API
// @version 1.0.0
// @description Tutoring marketplace: requests, bids, wallet ledger and ratings
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type stores struct {
	requests service.RequestRepository
	bids     service.BidRepository
	ledger   service.LedgerRepository
	ratings  service.RatingRepository
	reviews  service.ReviewRepository
	checks   map[string]handler.ReadinessCheck
	closers  []func() error
}

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openStores(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to open storage", "error", err)
	}
	defer st.close(logr)

	metricsSvc := service.NewMetricsService()
	common := []service.Option{service.WithMetrics(metricsSvc)}
	validate := service.NewValidator()
	locks := keylock.New()

	cacheSvc, redisClient := buildCache(cfg, metricsSvc, logr)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		st.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	publisher, err := buildPublisher(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init event publisher", "error", err)
	}
	dispatcher := service.NewEventDispatcher(publisher, metricsSvc, logr, service.EventDispatcherConfig{
		Workers: cfg.Events.Workers,
		Retries: cfg.Events.Retries,
	})
	dispatcher.Start(context.Background())

	requestSvc := service.NewRequestService(st.requests, validate, locks, service.RequestServiceConfig{MinPrice: cfg.Market.MinPrice}, logr, common...)
	bidSvc := service.NewBidService(st.bids, requestSvc, validate, locks, service.BidServiceConfig{
		MinPrice:      cfg.Market.MinPrice,
		MaxMessageLen: cfg.Market.MaxBidMessage,
	}, logr, common...)
	ledgerSvc := service.NewLedgerService(st.ledger, locks, logr, common...)
	ratingSvc := service.NewRatingService(st.ratings, locks, logr, common...)
	reviewSvc := service.NewReviewService(st.reviews, logr, common...)
	marketSvc := service.NewMarketplaceService(service.MarketplaceDeps{
		Requests: requestSvc,
		Bids:     bidSvc,
		Ledger:   ledgerSvc,
		Ratings:  ratingSvc,
		Reviews:  reviewSvc,
		Locks:    locks,
		Cache:    cacheSvc,
		Events:   dispatcher,
	}, service.MarketplaceConfig{
		WorkflowRetries: cfg.Market.WorkflowRetries,
		WorkflowBackoff: cfg.Market.WorkflowBackoff,
		ListingTTL:      cfg.Listing.CacheTTL,
	}, logr, common...)
	walletSvc := service.NewWalletService(ledgerSvc, validate, dispatcher, service.WalletConfig{
		MinDeposit:    cfg.Market.MinDeposit,
		MinWithdrawal: cfg.Market.MinWithdrawal,
	}, logr, common...)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})

	scheduler := jobs.NewScheduler(logr)
	if cfg.Expiry.Enabled {
		expirySvc := service.NewExpiryService(marketSvc, logr)
		if err := expirySvc.Register(scheduler, cfg.Expiry.Schedule); err != nil {
			logr.Sugar().Fatalw("failed to schedule expiry", "error", err)
		}
	}
	scheduler.Start()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health"))

	handler.RegisterRoutes(r, cfg.APIPrefix, internalmiddleware.JWT(tokenSvc), handler.Handlers{
		Requests: handler.NewRequestHandler(marketSvc),
		Bids:     handler.NewBidHandler(marketSvc),
		Wallet:   handler.NewWalletHandler(walletSvc),
		Ratings:  handler.NewRatingHandler(marketSvc),
		Metrics:  handler.NewMetricsHandler(metricsSvc, st.checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver, "ledger", cfg.Storage.LedgerDriver, "events", cfg.Events.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Warnw("http shutdown incomplete", "error", err)
	}
	scheduler.Stop()
	dispatcher.Stop()
}

func openStores(cfg *config.Config, logr *zap.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]handler.ReadinessCheck)}

	var db *sqlx.DB
	if cfg.Storage.Driver == config.DriverPostgres || cfg.Storage.LedgerDriver == config.DriverPostgres {
		var err error
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		st.closers = append(st.closers, db.Close)
		st.checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		st.requests = repository.NewRequestRepository(db)
		st.bids = repository.NewBidRepository(db)
		st.ratings = repository.NewRatingRepository(db)
		st.reviews = repository.NewReviewRepository(db)
	case config.DriverMemory, "":
		st.requests = repository.NewMemoryRequestRepository()
		st.bids = repository.NewMemoryBidRepository()
		st.ratings = repository.NewMemoryRatingRepository()
		st.reviews = repository.NewMemoryReviewRepository()
	default:
		st.close(logr)
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	switch cfg.Storage.LedgerDriver {
	case config.DriverPostgres:
		st.ledger = repository.NewLedgerRepository(db)
	case config.DriverPebble:
		ledger, err := repository.OpenPebbleLedger(cfg.Storage.LedgerPebbleDir, nil)
		if err != nil {
			st.close(logr)
			return nil, err
		}
		st.ledger = ledger
		st.closers = append(st.closers, ledger.Close)
	case config.DriverMemory, "":
		if cfg.Storage.Driver == config.DriverPostgres {
			logr.Warn("ledger kept in memory while entities are in postgres")
		}
		st.ledger = repository.NewMemoryLedgerRepository()
	default:
		st.close(logr)
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Storage.LedgerDriver)
	}
	return st, nil
}

func (s *stores) close(logr *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logr.Warn("failed to close store", zap.Error(err))
		}
	}
	s.closers = nil
}

func buildCache(cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (*service.CacheService, *redis.Client) {
	if !cfg.Listing.Enabled {
		return nil, nil
	}
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, listing cache disabled", zap.Error(err))
		return nil, nil
	}
	repo := repository.NewCacheRepository(client, "tutorly:", logr)
	return service.NewCacheService(repo, metrics, cfg.Listing.CacheTTL, logr, true), client
}

func buildPublisher(cfg *config.Config, logr *zap.Logger) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case config.EventsKafka:
		return events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
	case config.EventsNone:
		return events.NopPublisher{}, nil
	case config.EventsLog, "":
		return events.NewLogPublisher(logr), nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Events.Driver)
	}
}
