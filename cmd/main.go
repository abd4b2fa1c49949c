package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shenikar/emergency_response_client/internal/backend"
	"github.com/shenikar/emergency_response_client/internal/channel"
	"github.com/shenikar/emergency_response_client/internal/config"
	"github.com/shenikar/emergency_response_client/internal/geo"
	v1 "github.com/shenikar/emergency_response_client/internal/handler/http/v1"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/notify"
	"github.com/shenikar/emergency_response_client/internal/repository"
	"github.com/shenikar/emergency_response_client/internal/room"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/service"
	"github.com/shenikar/emergency_response_client/internal/session"
	"github.com/shenikar/emergency_response_client/internal/status"
	"github.com/shenikar/emergency_response_client/internal/streaming"
	"github.com/shenikar/emergency_response_client/pkg/logger"
	"github.com/shenikar/emergency_response_client/pkg/postgres"
	redisclient "github.com/shenikar/emergency_response_client/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/emergency_response_client/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Emergency Response Client API
// @version 1.0
// @description Local control API of the emergency response coordination client.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// newDevice - записанный трек, если он задан, иначе фиксированная позиция
func newDevice(cfg *config.Config) (geo.Device, error) {
	if cfg.DeviceTrackFile != "" {
		track, err := geo.LoadTrack(cfg.DeviceTrackFile)
		if err != nil {
			return nil, err
		}
		return track, nil
	}
	return &geo.FixedDevice{
		Position: models.Position{
			Latitude:  cfg.DeviceLatitude,
			Longitude: cfg.DeviceLongitude,
		},
		Period: cfg.StreamInterval,
	}, nil
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel, logrus.Fields{
		"role":    cfg.Role,
		"user_id": cfg.UserID,
	})

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Журнал переходов включается только с DATABASE_URL
	var dbpool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := runMigrations(cfg, log); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}

		dbpool, err = postgres.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbpool.Close()
		log.Info("Successfully connected to PostgreSQL")
	} else {
		log.Info("DATABASE_URL is not set, status journal disabled")
	}

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	// Очередь уведомлений и воркер доставки
	publisher := notify.NewQueuedPublisher(notify.NewRedisPublisher(redisClient), 64, log)
	publisher.Start(ctx)
	notifyWorker := notify.NewWorker(redisClient, log, cfg)
	notifyWorker.Start(ctx)

	// Геолокация
	device, err := newDevice(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize positioning device: %v", err)
	}
	locations := geo.NewSource(device, log)

	// Канал реального времени
	realtime := channel.New(channel.Options{
		URL:   cfg.ServerURL,
		Token: cfg.AuthToken,
		Policy: channel.ReconnectPolicy{
			Attempts: cfg.ReconnectAttempts,
			Delay:    cfg.ReconnectDelay,
		},
	}, channel.NewWebsocketDialer(cfg.HandshakeTimeout), log)

	// Карта, поток позиции и комнаты
	presenter := route.NewPresenter(route.NewMemoryView(), cfg.MarkerMinDistanceMeters)
	streamer := streaming.NewController(
		locations,
		session.NewSampleSender(realtime, presenter),
		geo.WatchOptions{
			Interval:          cfg.StreamInterval,
			MinDistanceMeters: cfg.StreamMinDistanceMeters,
		},
		log,
	)
	rooms := room.NewMembership(realtime, log)

	backendClient := backend.NewClient(cfg.APIBaseURL, cfg.AuthToken, cfg.RESTTimeout, log)

	var availability *status.Availability
	if cfg.Role == models.RoleProvider {
		availability = status.NewAvailability(true, backendClient, log)
	}

	sess := session.New(session.Deps{
		Role:         cfg.Role,
		UserID:       cfg.UserID,
		Channel:      realtime,
		Streaming:    streamer,
		Rooms:        rooms,
		Presenter:    presenter,
		Updater:      backendClient,
		Availability: availability,
		Notifier:     publisher,
		Logger:       log,
	})

	// Инициализация репозиториев
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient, cfg.IncidentCacheTTL)

	// Инициализация сервисов
	incidentService := service.NewIncidentService(ctx, incidentRepo, backendClient, sess, log)

	// Подключение после регистрации обработчиков сессии
	if err := realtime.Connect(ctx); err != nil {
		if errors.Is(err, models.ErrAuthRejected) {
			log.Fatalf("Coordination server rejected credentials: %v", err)
		}
		log.Fatalf("Failed to connect to coordination server: %v", err)
	}

	// Инициализация хэндлеров
	handler := v1.NewHandler(incidentService, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Выход из комнат и остановка потока до закрытия канала
	sess.Close()
	rooms.Close()
	realtime.Disconnect()
	cancel()

	log.Info("Client gracefully stopped")
}
