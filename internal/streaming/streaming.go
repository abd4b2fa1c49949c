// Package streaming публикует позицию устройства в комнату инцидента.
// Одновременно активен не больше одного потока.
package streaming

import (
	"context"
	"fmt"
	"sync"

	"github.com/shenikar/emergency_response_client/internal/geo"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Sender - канал, в который уходят отсчеты
type Sender interface {
	Send(msg protocol.Message)
}

// Locator - источник отсчетов позиции
type Locator interface {
	Watch(ctx context.Context, opts geo.WatchOptions, onSample func(models.Position), onError func(error)) (*geo.Subscription, error)
}

type stream struct {
	incidentID string
	role       models.Role
	sub        *geo.Subscription
}

// Controller управляет единственным активным потоком позиций
type Controller struct {
	locator Locator
	sender  Sender
	opts    geo.WatchOptions
	logger  *logrus.Logger

	mu     sync.Mutex
	active *stream
}

func NewController(locator Locator, sender Sender, opts geo.WatchOptions, logger *logrus.Logger) *Controller {
	return &Controller{
		locator: locator,
		sender:  sender,
		opts:    opts,
		logger:  logger,
	}
}

// Start начинает публикацию позиции для инцидента. Предыдущий поток
// другого инцидента останавливается до начала нового.
func (c *Controller) Start(ctx context.Context, incidentID string, role models.Role) error {
	log := c.logger.WithFields(logrus.Fields{
		"component":   "streaming",
		"method":      "Start",
		"incident_id": incidentID,
		"role":        role,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active.incidentID == incidentID && c.active.role == role {
		return nil
	}
	c.stopLocked()

	st := &stream{incidentID: incidentID, role: role}
	onSample := func(pos models.Position) {
		c.sender.Send(protocol.LocationReport{
			Role:       role,
			IncidentID: incidentID,
			Location:   pos.Point(),
		})
	}
	onError := func(err error) {
		c.fail(st, err)
	}

	// поток живет дольше запроса, который его запустил
	sub, err := c.locator.Watch(context.WithoutCancel(ctx), c.opts, onSample, onError)
	if err != nil {
		log.WithError(err).Warn("Failed to start location streaming")
		return fmt.Errorf("streaming: could not start location watch: %w", err)
	}
	st.sub = sub
	c.active = st

	log.Info("Location streaming started")
	return nil
}

// fail переводит поток в неактивное состояние после сбоя позиционирования
func (c *Controller) fail(st *stream, err error) {
	c.mu.Lock()
	if c.active != st {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	st.sub.Cancel()
	c.logger.WithFields(logrus.Fields{
		"component":   "streaming",
		"incident_id": st.incidentID,
	}).WithError(err).Warn("Location streaming stopped after positioning failure")
}

// Stop идемпотентна; после возврата отсчеты больше не отправляются
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.active == nil {
		return
	}
	c.active.sub.Cancel()
	c.logger.WithFields(logrus.Fields{
		"component":   "streaming",
		"incident_id": c.active.incidentID,
	}).Info("Location streaming stopped")
	c.active = nil
}

// Active возвращает инцидент и роль активного потока
func (c *Controller) Active() (string, models.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", "", false
	}
	return c.active.incidentID, c.active.role, true
}
