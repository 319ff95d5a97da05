package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"numpool/internal/config"
	"numpool/internal/handlers"
	"numpool/internal/models"
	"numpool/internal/repository"
	"numpool/internal/service"
	"numpool/pkg/cache"
	"numpool/pkg/database"
	"numpool/pkg/messaging"
	"numpool/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()

	// Initialize MongoDB
	mongoDB, err := database.NewMongoDB(cfg.MongoURI, cfg.DatabaseName, 10*time.Second, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close()

	db := mongoDB.Database()

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize RabbitMQ
	rabbit, err := messaging.NewRabbitMQ(cfg.RabbitURI, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbit.Close()

	// Initialize repositories
	phoneRepo := repository.NewPhoneRepository(db, logger)
	orderRepo := repository.NewOrderRepository(db, logger)
	txRepo := repository.NewTransactionRepository(db, logger)
	pricingRepo := repository.NewPricingRepository(db, logger)
	catalogRepo := repository.NewCatalogRepository(db, logger)

	for _, r := range []interface {
		CreateIndexes(context.Context) error
	}{phoneRepo, orderRepo, txRepo, pricingRepo, catalogRepo} {
		if err := r.CreateIndexes(ctx); err != nil {
			logger.Fatalf("Failed to create indexes: %v", err)
		}
	}

	// Initialize services
	carrier := service.NewCarrierClient(
		cfg.CarrierAPIKey,
		cfg.CarrierBaseURL,
		cfg.CarrierProductID,
		cfg.CarrierTimeout,
		logger,
	)
	cacheService := service.NewCacheService(redisClient, logger)
	retryManager := service.NewRetryManager(rabbit.Channel(), logger)
	metrics := service.NewMetricsCollector()

	poolService := service.NewPoolService(phoneRepo, carrier, metrics, logger, cfg.LeaseDuration)
	pricingService := service.NewPricingService(pricingRepo, cacheService, logger)
	ledgerService := service.NewLedgerService(txRepo, cacheService, logger)
	catalogService := service.NewCatalogService(catalogRepo, logger)
	statsService := service.NewStatsService(orderRepo, catalogRepo, metrics, logger)

	orderService := service.NewOrderService(
		orderRepo,
		poolService,
		pricingService,
		ledgerService,
		catalogService,
		carrier,
		retryManager,
		cacheService,
		metrics,
		logger,
		cfg.PollInterval,
		cfg.MaxPollAttempts,
	)

	sweeper := service.NewSweeper(
		poolService,
		orderService,
		ledgerService,
		metrics,
		logger,
		cfg.SweepInterval,
		cfg.PendingOrderTTL,
		cfg.PendingChargeTTL,
	)

	// Seed the catalog on first start
	if err := seedCatalog(ctx, cfg, catalogRepo, pricingService, logger); err != nil {
		logger.Fatalf("Failed to seed catalog: %v", err)
	}

	// Start background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go retryManager.StartWorker(workerCtx, orderService)
	go sweeper.Run(workerCtx)
	go statsService.Run(workerCtx)

	// Initialize handlers and middleware
	httpHandler := handlers.NewHTTPHandler(
		orderService,
		poolService,
		pricingService,
		ledgerService,
		catalogService,
		statsService,
		logger,
	)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	rateLimiter := middleware.NewRateLimiter(120, time.Minute)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(rateLimiter.Middleware())

	router.GET("/health", httpHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		catalog := api.Group("/catalog")
		{
			catalog.GET("/services", httpHandler.PopularServices)
			catalog.GET("/countries", httpHandler.ActiveCountries)
			catalog.GET("/services/:service_id", httpHandler.GetService)
			catalog.GET("/countries/:country_id", httpHandler.GetCountry)
			catalog.GET("/services/:service_id/countries", httpHandler.CountriesForService)
			catalog.GET("/countries/:country_id/services", httpHandler.ServicesForCountry)
			catalog.GET("/countries/:country_id/pricing", httpHandler.CountryPricing)
			catalog.GET("/services/:service_id/stats", httpHandler.ServiceStats)
		}

		api.GET("/pricing/quote", httpHandler.Quote)
		api.GET("/pool/availability", httpHandler.PoolAvailability)

		authed := api.Group("")
		authed.Use(authMiddleware.Authenticate())
		{
			authed.POST("/orders", httpHandler.OpenOrder)
			authed.GET("/orders", httpHandler.ActiveOrders)
			authed.GET("/orders/:order_id", httpHandler.GetOrder)
			authed.POST("/orders/:order_id/code", httpHandler.SubmitCode)
			authed.POST("/orders/:order_id/cancel", httpHandler.CancelOrder)
			authed.GET("/orders/:order_id/transactions", httpHandler.OrderTransactions)

			authed.GET("/balance", httpHandler.Balance)
			authed.POST("/balance/deposit", httpHandler.Deposit)
			authed.POST("/balance/withdraw", httpHandler.Withdraw)
			authed.GET("/transactions", httpHandler.Transactions)
		}

		admin := api.Group("/admin")
		admin.Use(authMiddleware.Authenticate(), authMiddleware.RequireRole("admin"))
		{
			admin.POST("/pool/numbers", httpHandler.ImportNumber)
			admin.GET("/pool/numbers/:number/messages", httpHandler.NumberMessages)
			admin.POST("/pool/numbers/:number/messages", httpHandler.InboundMessage)
			admin.POST("/pool/numbers/:number/extend", httpHandler.ExtendLease)
			admin.PUT("/pool/numbers/:number/status", httpHandler.SetNumberStatus)
			admin.GET("/pricing/entry", httpHandler.PricingEntry)
			admin.PUT("/pricing/current", httpHandler.SetCurrentPrice)
			admin.PUT("/pricing/discounts", httpHandler.ReplaceDiscounts)
			admin.POST("/pricing/sync-base", httpHandler.SyncBasePrice)
		}
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// seedCatalog loads countries, services, and the price book from the seed file.
// Runs only when the catalog is empty; an already-seeded deployment is left
// untouched.
func seedCatalog(
	ctx context.Context,
	cfg *config.Config,
	catalogRepo repository.CatalogRepository,
	pricing *service.PricingService,
	logger *logrus.Logger,
) error {
	existing, err := catalogRepo.ActiveCountries(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	seed, err := config.LoadSeed(cfg.SeedPath)
	if err != nil {
		return err
	}
	if len(seed.Countries) == 0 && len(seed.Services) == 0 {
		return nil
	}

	countryByCode := make(map[string]*models.Country, len(seed.Countries))
	for _, sc := range seed.Countries {
		country := &models.Country{
			Name:      sc.Name,
			Code:      sc.Code,
			FlagIcon:  sc.FlagIcon,
			PhoneCode: sc.PhoneCode,
			IsActive:  true,
		}
		if err := catalogRepo.CreateCountry(ctx, country); err != nil {
			return err
		}
		countryByCode[sc.Code] = country
	}

	now := time.Now()
	for _, ss := range seed.Services {
		svc := &models.Service{
			Name:         ss.Name,
			Icon:         ss.Icon,
			BasePrice:    ss.BasePrice,
			CurrentPrice: ss.BasePrice,
			LastUpdated:  now,
		}
		for _, sp := range ss.Pricing {
			if country, ok := countryByCode[sp.CountryCode]; ok {
				svc.AvailableCountries = append(svc.AvailableCountries, country.ID)
			}
		}
		if err := catalogRepo.CreateService(ctx, svc); err != nil {
			return err
		}

		for _, sp := range ss.Pricing {
			country, ok := countryByCode[sp.CountryCode]
			if !ok {
				logger.Warnf("Seed pricing for %s references unknown country %s", ss.Name, sp.CountryCode)
				continue
			}

			tiers := make([]models.BulkDiscount, 0, len(sp.Tiers))
			for _, t := range sp.Tiers {
				tiers = append(tiers, models.BulkDiscount{
					MinQuantity: t.MinQuantity,
					PricePer:    t.PricePer,
				})
			}

			entry := &models.PricingEntry{
				CountryID:     country.ID,
				ServiceID:     svc.ID,
				BasePrice:     ss.BasePrice,
				CurrentPrice:  sp.CurrentPrice,
				BulkDiscounts: tiers,
			}
			if err := pricing.Create(ctx, entry); err != nil {
				return err
			}
		}
	}

	logger.Infof("Seeded catalog: %d countries, %d services", len(seed.Countries), len(seed.Services))
	return nil
}
