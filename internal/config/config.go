package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shenikar/emergency_response_client/internal/models"
)

// Config - структура для хранения конфигурации клиента
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Сервер координации
	ServerURL   string        `env:"SERVER_URL"`
	APIBaseURL  string        `env:"API_BASE_URL"`
	AuthToken   string        `env:"AUTH_TOKEN"`
	UserID      string        `env:"USER_ID"`
	Role        models.Role   `env:"ROLE"`
	RESTTimeout time.Duration `env:"REST_TIMEOUT" envDefault:"10s"`

	// Канал реального времени
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"1s"`
	HandshakeTimeout  time.Duration `env:"WS_HANDSHAKE_TIMEOUT" envDefault:"10s"`

	// Поток позиции и карта
	StreamInterval          time.Duration `env:"STREAM_INTERVAL" envDefault:"5s"`
	StreamMinDistanceMeters float64       `env:"STREAM_MIN_DISTANCE_METERS" envDefault:"10"`
	MarkerMinDistanceMeters float64       `env:"MARKER_MIN_DISTANCE_METERS" envDefault:"25"`

	// Устройство позиционирования
	DeviceTrackFile string  `env:"DEVICE_TRACK_FILE"`
	DeviceLatitude  float64 `env:"DEVICE_LATITUDE"`
	DeviceLongitude float64 `env:"DEVICE_LONGITUDE"`

	// Redis Config
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass        string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	IncidentCacheTTL time.Duration `env:"INCIDENT_CACHE_TTL" envDefault:"5m"`

	// Журнал переходов статуса; пустой DATABASE_URL отключает журнал
	DatabaseURL string `env:"DATABASE_URL"`

	// Доставка уведомлений
	NotifyWebhookURL    string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string        `env:"NOTIFY_WEBHOOK_SECRET"`
	NotifyTimeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	NotifyMaxRetries    int           `env:"NOTIFY_MAX_RETRIES" envDefault:"3"`
	NotifyBaseDelay     time.Duration `env:"NOTIFY_BASE_DELAY" envDefault:"1s"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		ServerURL:               os.Getenv("SERVER_URL"),
		APIBaseURL:              os.Getenv("API_BASE_URL"),
		AuthToken:               os.Getenv("AUTH_TOKEN"),
		UserID:                  os.Getenv("USER_ID"),
		Role:                    models.Role(strings.ToLower(strings.TrimSpace(os.Getenv("ROLE")))),
		RESTTimeout:             getEnvAsDuration("REST_TIMEOUT", 10*time.Second),
		ReconnectAttempts:       getEnvAsInt("RECONNECT_ATTEMPTS", 5),
		ReconnectDelay:          getEnvAsDuration("RECONNECT_DELAY", 1*time.Second),
		HandshakeTimeout:        getEnvAsDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
		StreamInterval:          getEnvAsDuration("STREAM_INTERVAL", 5*time.Second),
		StreamMinDistanceMeters: getEnvAsFloat("STREAM_MIN_DISTANCE_METERS", 10),
		MarkerMinDistanceMeters: getEnvAsFloat("MARKER_MIN_DISTANCE_METERS", 25),
		DeviceTrackFile:         os.Getenv("DEVICE_TRACK_FILE"),
		DeviceLatitude:          getEnvAsFloat("DEVICE_LATITUDE", 0),
		DeviceLongitude:         getEnvAsFloat("DEVICE_LONGITUDE", 0),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:               os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getEnvAsInt("REDIS_DB", 0),
		IncidentCacheTTL:        getEnvAsDuration("INCIDENT_CACHE_TTL", 5*time.Minute),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		NotifyWebhookURL:        os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookSecret:     os.Getenv("NOTIFY_WEBHOOK_SECRET"),
		NotifyTimeout:           getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		NotifyMaxRetries:        getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
		NotifyBaseDelay:         getEnvAsDuration("NOTIFY_BASE_DELAY", 1*time.Second),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"SERVER_URL":   c.ServerURL,
		"API_BASE_URL": c.APIBaseURL,
		"AUTH_TOKEN":   c.AuthToken,
		"USER_ID":      c.UserID,
	}
	for _, key := range []string{"SERVER_URL", "API_BASE_URL", "AUTH_TOKEN", "USER_ID"} {
		if required[key] == "" {
			return fmt.Errorf("%s environment variable is required", key)
		}
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("SERVER_URL must be a ws:// or wss:// URL")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("ROLE must be %q or %q", models.RoleRequester, models.RoleProvider)
	}
	if c.ReconnectAttempts < 1 {
		return fmt.Errorf("RECONNECT_ATTEMPTS must be positive")
	}
	if err := models.ValidateCoordinates(c.DeviceLatitude, c.DeviceLongitude); err != nil {
		return fmt.Errorf("DEVICE_LATITUDE/DEVICE_LONGITUDE: %w", err)
	}
	return nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat возвращает значение переменной окружения как float64 или значение по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
