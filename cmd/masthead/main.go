package main

import (
	"context"
	"time"

	"masthead/internal/countdown"
	"masthead/internal/gateway"
	"masthead/internal/handlers"
	"masthead/internal/hub"
	"masthead/internal/metrics"
	"masthead/internal/mutation"
	"masthead/internal/store"
	"masthead/pkg/config"
	"masthead/pkg/logging"
	"masthead/pkg/models"
	"masthead/pkg/monitoring"
	"masthead/pkg/server"
	"masthead/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("masthead")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Masthead (Moderation Sync Core)")

	backendURL := config.GetEnv("MASTHEAD_BACKEND_URL", "http://localhost:8000")
	useMock := config.GetEnvBool("MASTHEAD_USE_MOCK", false)
	listLimit := config.GetEnvInt("MASTHEAD_LIST_LIMIT", 50)
	freshness := config.GetEnvDuration("MASTHEAD_FRESHNESS_WINDOW", 30*time.Second)
	healthInterval := config.GetEnvDuration("MASTHEAD_HEALTH_INTERVAL", 60*time.Second)

	// Gateway: real backend or static fixtures
	var gw gateway.Gateway
	if useMock {
		gw = gateway.NewMock()
		logger.Warn("Using mock gateway with fixture articles")
	} else {
		gw = gateway.NewClient(backendURL)
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("masthead", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("masthead", version.Version, version.GitCommit)

	healthChecker.AddCheck("backend", monitoring.GatewayHealthCheck("backend", func(ctx context.Context) error {
		_, err := gw.Health(ctx)
		return err
	}))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"MASTHEAD_BACKEND_URL": backendURL,
	}))

	// Create custom sync-core metrics
	serviceMetrics := &metrics.Metrics{
		CacheReads:      metricsCollector.NewCounter("cache_reads_total", "Cache store reads", []string{"result"}),
		CacheRefreshes:  metricsCollector.NewCounter("cache_refreshes_total", "Cache refreshes", []string{"trigger"}),
		Mutations:       metricsCollector.NewCounter("mutations_total", "Settled optimistic mutations", []string{"action", "result"}),
		BusyRejections:  metricsCollector.NewCounter("mutation_busy_rejections_total", "Actions rejected because one was in flight", []string{"action"}),
		MutationTime:    metricsCollector.NewHistogram("mutation_duration_seconds", "Mutation settle time", []string{"action"}, nil),
		GatewayRequests: metricsCollector.NewCounter("gateway_requests_total", "Backend gateway requests", []string{"operation", "status"}),
		GatewayDuration: metricsCollector.NewHistogram("gateway_request_duration_seconds", "Backend gateway request duration", []string{"operation"}, nil),
		HubClients:      metricsCollector.NewGauge("websocket_clients_active", "Active WebSocket clients", []string{}),
		CountdownTicks:  metricsCollector.NewCounter("countdown_ticks_total", "Countdown ticks computed", []string{}),
	}

	// Cache store fed by the gateway's list reads
	loader := func(ctx context.Context, key store.Key) ([]models.Article, error) {
		start := time.Now()
		articles, err := gw.ListArticles(ctx, store.KeyStatus(key), listLimit)
		status := "success"
		if err != nil {
			status = "error"
		}
		serviceMetrics.GatewayRequests.WithLabelValues("list_articles", status).Inc()
		serviceMetrics.GatewayDuration.WithLabelValues("list_articles").Observe(time.Since(start).Seconds())
		return articles, err
	}
	articleStore := store.New(store.Options{FreshnessWindow: freshness}, loader, store.Hooks{
		OnHit:     func(string) { serviceMetrics.CacheReads.WithLabelValues("hit").Inc() },
		OnMiss:    func(string) { serviceMetrics.CacheReads.WithLabelValues("miss").Inc() },
		OnStale:   func(string) { serviceMetrics.CacheReads.WithLabelValues("stale").Inc() },
		OnRefresh: func(string) { serviceMetrics.CacheRefreshes.WithLabelValues("background").Inc() },
	}, logger)

	// Independent backend health poll, decoupled from cache freshness
	healthPoller := store.NewHealthPoller(gw.Health, healthInterval, func(result models.HealthResponse) {
		logger.WithFields(logging.Fields{
			"status":  result.Status,
			"service": result.Service,
		}).Info("Backend health changed")
	}, logger)
	healthPoller.Start()
	defer healthPoller.Stop()

	// Optimistic mutation engine
	engine := mutation.NewEngine(articleStore, gw, mutation.Hooks{
		OnSettled: func(action models.Action, result string) {
			serviceMetrics.Mutations.WithLabelValues(string(action), result).Inc()
		},
		OnBusy: func(action models.Action) {
			serviceMetrics.BusyRejections.WithLabelValues(string(action)).Inc()
		},
	}, logger)

	// Countdown and real-time fan-out
	slotTemplate := models.DefaultTimeSlots
	ticker := countdown.NewTicker(slotTemplate, logger,
		countdown.WithTickHook(func() { serviceMetrics.CountdownTicks.WithLabelValues().Inc() }))

	wsHub := hub.NewHub(ticker, logger, func(count int) {
		serviceMetrics.HubClients.WithLabelValues().Set(float64(count))
	})
	go wsHub.Run()

	bridge := hub.NewBridge(articleStore, wsHub, slotTemplate, logger)
	bridge.Start()
	defer bridge.Stop()

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "masthead", healthChecker, metricsCollector)

	handlers.Init(articleStore, engine, healthPoller, ticker, wsHub, slotTemplate, logger, serviceMetrics)

	api := router.Group("/api")
	{
		api.GET("/articles", handlers.GetArticles)
		api.POST("/articles/:id/action", handlers.PostAction)
		api.GET("/schedule", handlers.GetSchedule)
		api.GET("/countdown", handlers.GetCountdown)
		api.GET("/backend/health", handlers.GetBackendHealth)
		api.POST("/ingest", handlers.PostIngest)
		api.GET("/hub/stats", handlers.GetHubStats)
	}
	router.GET("/ws", handlers.ServeWS)

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("masthead", "18080")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
