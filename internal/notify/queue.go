package notify

import (
	"context"
	"errors"
	"time"

	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrQueueFull - локальная очередь публикации переполнена
var ErrQueueFull = errors.New("notification queue is full")

const publishTimeout = 5 * time.Second

// QueuedPublisher принимает уведомления без ожидания Redis и
// публикует их в фоне через next
type QueuedPublisher struct {
	next   Publisher
	queue  chan models.Notification
	logger *logrus.Logger
}

func NewQueuedPublisher(next Publisher, size int, logger *logrus.Logger) *QueuedPublisher {
	if size <= 0 {
		size = 64
	}
	return &QueuedPublisher{
		next:   next,
		queue:  make(chan models.Notification, size),
		logger: logger,
	}
}

// Publish ставит уведомление в очередь; ctx не используется,
// публикация идет со своим таймаутом
func (p *QueuedPublisher) Publish(_ context.Context, n models.Notification) error {
	select {
	case p.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start запускает горутину публикации до отмены ctx
func (p *QueuedPublisher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-p.queue:
				p.publish(n)
			}
		}
	}()
}

func (p *QueuedPublisher) publish(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.next.Publish(ctx, n); err != nil {
		p.logger.WithFields(logrus.Fields{
			"component": "notify",
			"user_id":   n.UserID,
			"title":     n.Title,
		}).WithError(err).Error("Failed to publish notification")
	}
}
