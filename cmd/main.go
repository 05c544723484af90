package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"streamvault/internal/config"
	"streamvault/internal/handler"
	"streamvault/internal/logging"
	"streamvault/internal/metrics"
	"streamvault/internal/repository"
	"streamvault/internal/service"
	"streamvault/internal/service/encoder"
	"streamvault/internal/service/s3"
)

func connectWithRetry(dsn string, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runEvery выполняет задачу по тикеру до отмены контекста
func runEvery(ctx context.Context, interval time.Duration, name string, logger *logrus.Logger, run func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Errorf("Scheduled %s failed", name)
			}
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	logger := logging.NewLogger("streamvault")

	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Подключаемся к базе данных
	db, err := connectWithRetry(appConfig.Database.GetDSN(), 5, time.Second*5)
	if err != nil {
		logger.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Инициализация S3 клиента
	s3Config, err := s3.NewConfig(".s3.env")
	if err != nil {
		logger.Fatalf("Failed to load S3 config: %v", err)
	}

	s3Client, err := s3.NewClient(s3Config)
	if err != nil {
		logger.Fatalf("Failed to create S3 client: %v", err)
	}

	// Инициализация клиента сервиса кодирования
	encoderConfig, err := encoder.NewConfig(".encoder.env")
	if err != nil {
		logger.Fatalf("Failed to load encoder config: %v", err)
	}

	encoderClient, err := encoder.NewClient(encoderConfig)
	if err != nil {
		logger.Fatalf("Failed to create encoder client: %v", err)
	}

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	appMetrics := metrics.New(registry)

	// Инициализация репозиториев и сервисов
	assetRepo := repository.NewAssetRepository(db)

	assetService := service.NewAssetService(assetRepo, encoderClient, logger)
	migrationService := service.NewMigrationService(assetRepo, s3Client, encoderClient, logger, appMetrics, appConfig.Migration)
	reconcileService := service.NewReconcileService(assetRepo, logger, appMetrics)
	auditService := service.NewAuditService(s3Client, assetRepo, logger, appMetrics, appConfig.Audit.PageSize)

	tokenService, err := service.NewTokenService(assetRepo, appConfig.Token, logger, appMetrics)
	if err != nil {
		logger.Fatalf("Failed to create token service: %v", err)
	}

	// Инициализация хендлеров
	assetHandler := handler.NewAssetHandler(assetService, tokenService, migrationService, auditService, logger)
	webhookHandler := handler.NewWebhookHandler(reconcileService, encoderConfig.WebhookSecret, logger, appMetrics)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Post("/webhooks/encoding-status", webhookHandler.HandleEncodingStatus)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/assets", assetHandler.CreateAsset)

		r.Route("/assets/{uuid}", func(r chi.Router) {
			r.Get("/", assetHandler.GetAsset)
			r.Get("/playback-token", assetHandler.GetPlaybackToken)
			r.Get("/remote-status", assetHandler.GetRemoteStatus)
			r.Post("/retry", assetHandler.RetryMigration)
		})

		r.Post("/migrate/run", assetHandler.RunMigration)
		r.Post("/audit/run", assetHandler.RunAudit)
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		logger.Infof("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Фоновые задачи: миграция и аудит по расписанию.
	// Каждая в собственной горутине: долгий пакет миграции
	// не задерживает тики аудита и наоборот.
	jobsCtx, cancelJobs := context.WithCancel(context.Background())

	go runEvery(jobsCtx, appConfig.Migration.Interval, "migration run", logger, func(ctx context.Context) error {
		_, err := migrationService.Run(ctx)
		return err
	})
	go runEvery(jobsCtx, appConfig.Audit.Interval, "drift audit", logger, func(ctx context.Context) error {
		_, err := auditService.Run(ctx)
		return err
	})

	// Ожидаем сигнал завершения
	<-quit
	logger.Info("Shutting down server...")
	cancelJobs()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server forced to shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database connection: %v", err)
	}

	logger.Info("Server exited properly")
}
