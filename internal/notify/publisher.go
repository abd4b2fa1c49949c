package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/emergency_response_client/internal/models"
)

//go:generate mockgen -source=publisher.go -destination=mocks/publisher_mock.go -package=mocks

const (
	notificationQueueKey = "notifications"
)

// Publisher - интерфейс для публикации уведомлений пользователю
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// RedisPublisher - реализация Publisher, использующая Redis
type RedisPublisher struct {
	redisClient *redis.Client
	now         func() time.Time
}

// NewRedisPublisher создает новый RedisPublisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		redisClient: client,
		now:         time.Now,
	}
}

// Publish кладет уведомление в очередь Redis
func (p *RedisPublisher) Publish(ctx context.Context, n models.Notification) error {
	payload, err := encode(n, p.now)
	if err != nil {
		return err
	}

	// LPUSH в левую часть списка, воркер забирает справа
	if err := p.redisClient.LPush(ctx, notificationQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification to Redis: %w", err)
	}
	return nil
}

// encode дополняет уведомление идентификатором и временем
func encode(n models.Notification, now func() time.Time) ([]byte, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return payload, nil
}
