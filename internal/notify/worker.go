// Package notify ставит уведомления пользователю в очередь Redis и
// доставляет их во внешний push-шлюз.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/emergency_response_client/internal/config"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/sirupsen/logrus"
)

const signatureHeader = "X-Signature"

// Worker - доставка уведомлений из очереди в push-шлюз
type Worker struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	cfg         *config.Config
	httpClient  *http.Client
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewWorker создает новый Worker
func NewWorker(redisClient *redis.Client, logger *logrus.Logger, cfg *config.Config) *Worker {
	return &Worker{
		redisClient: redisClient,
		logger:      logger,
		cfg:         cfg,
		httpClient: &http.Client{
			Timeout: cfg.NotifyTimeout,
		},
		sleep: sleepCtx,
	}
}

// Start запускает горутину обработки очереди
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting notification worker...")
	go func() {
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Stopping notification worker.")
				return
			default:
				// 0 - ждем бесконечно, выход по отмене контекста
				result, err := w.redisClient.BRPop(ctx, 0, notificationQueueKey).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						continue
					}
					w.logger.WithError(err).Error("Failed to pop notification from Redis")
					_ = w.sleep(ctx, w.cfg.NotifyTimeout)
					continue
				}

				// result[0] - ключ, result[1] - значение
				payload := result[1]
				var n models.Notification
				if err := json.Unmarshal([]byte(payload), &n); err != nil {
					w.logger.WithError(err).Error("Failed to unmarshal notification from Redis")
					continue
				}

				_ = w.deliver(ctx, n, payload)
			}
		}
	}()
}

// deliver отправляет уведомление с экспоненциальной задержкой между попытками
func (w *Worker) deliver(ctx context.Context, n models.Notification, rawPayload string) error {
	log := w.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"incident_id":     n.IncidentID,
	})
	log.Debug("Delivering notification...")

	if w.cfg.NotifyWebhookURL == "" {
		log.Warn("Push gateway URL is not configured. Skipping notification delivery.")
		return nil
	}

	maxRetries := w.cfg.NotifyMaxRetries
	delay := w.cfg.NotifyBaseDelay

	for i := 0; i < maxRetries; i++ {
		status, err := w.post(ctx, rawPayload)
		if err == nil && status >= 200 && status < 300 {
			log.Info("Notification delivered successfully.")
			return nil
		}
		if err != nil {
			log.WithError(err).Warnf("Failed to send notification. Retrying in %v. Retries left: %d", delay, maxRetries-1-i)
		} else {
			log.Warnf("Notification delivery failed with status code %d. Retrying in %v. Retries left: %d", status, delay, maxRetries-1-i)
		}
		if i == maxRetries-1 {
			break
		}
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}

	log.Errorf("Failed to deliver notification after %d retries.", maxRetries)
	return fmt.Errorf("notification %s not delivered after %d attempts", n.ID, maxRetries)
}

func (w *Worker) post(ctx context.Context, rawPayload string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.NotifyWebhookURL, bytes.NewBufferString(rawPayload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	// подпись HMAC, если задан секрет
	if w.cfg.NotifyWebhookSecret != "" {
		req.Header.Set(signatureHeader, generateHMACSHA256(rawPayload, w.cfg.NotifyWebhookSecret))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// generateHMACSHA256 генерирует HMAC-SHA256 подпись для данных
func generateHMACSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
