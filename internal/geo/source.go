// Package geo - источник геолокации: разовый запрос позиции и подписка
// на поток отсчетов с прореживанием по времени и смещению.
package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/sirupsen/logrus"
)

// Device - возможность позиционирования устройства
type Device interface {
	RequestPermission(ctx context.Context) error
	CurrentPosition(ctx context.Context) (models.Position, error)
	// Positions отдает сырые отсчеты до отмены ctx
	Positions(ctx context.Context) (<-chan models.Position, error)
}

// WatchOptions - прореживание подписки: оба условия должны выполниться
type WatchOptions struct {
	Interval          time.Duration
	MinDistanceMeters float64
}

// Source оборачивает Device. Разрешение подтверждается один раз
// за время жизни процесса.
type Source struct {
	device Device
	logger *logrus.Logger

	mu      sync.Mutex
	granted bool
}

func NewSource(device Device, logger *logrus.Logger) *Source {
	return &Source{
		device: device,
		logger: logger,
	}
}

func (s *Source) ensurePermission(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.granted {
		return nil
	}
	if err := s.device.RequestPermission(ctx); err != nil {
		s.logger.WithError(err).Warn("Location permission was not granted")
		if errors.Is(err, models.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrPermissionDenied, err)
	}
	s.granted = true
	return nil
}

// CurrentPosition возвращает текущую позицию устройства
func (s *Source) CurrentPosition(ctx context.Context) (models.Position, error) {
	if err := s.ensurePermission(ctx); err != nil {
		return models.Position{}, err
	}
	pos, err := s.device.CurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, models.ErrPositionUnavailable) {
			return models.Position{}, err
		}
		return models.Position{}, fmt.Errorf("%w: %v", models.ErrPositionUnavailable, err)
	}
	return pos, nil
}

// Watch подписывается на поток позиций. onSample вызывается не чаще
// одного раза за Interval и только при смещении не меньше MinDistanceMeters.
// onError получает ErrPositionUnavailable, если поток устройства оборвался.
// Из onSample нельзя вызывать Cancel той же подписки.
func (s *Source) Watch(ctx context.Context, opts WatchOptions, onSample func(models.Position), onError func(error)) (*Subscription, error) {
	if err := s.ensurePermission(ctx); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	feed, err := s.device.Positions(watchCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", models.ErrPositionUnavailable, err)
	}

	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(watchCtx, feed, &throttle{opts: opts}, onSample, onError)
	return sub, nil
}

// Subscription - отменяемая подписка на позиции
type Subscription struct {
	mu        sync.Mutex
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func (s *Subscription) run(ctx context.Context, feed <-chan models.Position, th *throttle, onSample func(models.Position), onError func(error)) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-feed:
			if !ok {
				s.mu.Lock()
				cancelled := s.cancelled
				s.mu.Unlock()
				if !cancelled && onError != nil {
					onError(models.ErrPositionUnavailable)
				}
				return
			}
			if !th.admit(pos) {
				continue
			}

			s.mu.Lock()
			if s.cancelled {
				s.mu.Unlock()
				return
			}
			onSample(pos)
			s.mu.Unlock()
		}
	}
}

// Cancel идемпотентна; после возврата onSample больше не вызывается
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()
	s.cancel()
}

// Done закрывается, когда горутина подписки завершилась
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

type throttle struct {
	opts WatchOptions
	last *models.Position
}

func (t *throttle) admit(pos models.Position) bool {
	if t.last == nil {
		t.last = &pos
		return true
	}
	if pos.Timestamp.Sub(t.last.Timestamp) < t.opts.Interval {
		return false
	}
	if Distance(t.last.LatLng(), pos.LatLng()) < t.opts.MinDistanceMeters {
		return false
	}
	t.last = &pos
	return true
}
