package status

import (
	"context"
	"fmt"

	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=availability.go -destination=mocks/availability_mock.go -package=mocks

// AvailabilityUpdater сообщает серверу доступность исполнителя
type AvailabilityUpdater interface {
	UpdateProviderStatus(ctx context.Context, available bool) error
}

// Availability - переключатель доступности исполнителя
type Availability struct {
	state   *Optimistic[bool]
	updater AvailabilityUpdater
	logger  *logrus.Logger
}

func NewAvailability(initial bool, updater AvailabilityUpdater, logger *logrus.Logger) *Availability {
	return &Availability{
		state:   NewOptimistic(initial),
		updater: updater,
		logger:  logger,
	}
}

// Available - текущее значение переключателя
func (a *Availability) Available() bool {
	return a.state.Value()
}

// Set применяет значение сразу и откатывает его при ошибке сервера
func (a *Availability) Set(ctx context.Context, available bool) error {
	pending := a.state.Apply(available)
	if err := a.updater.UpdateProviderStatus(ctx, available); err != nil {
		rolledBack := pending.Rollback()
		a.logger.WithFields(logrus.Fields{
			"component":   "availability",
			"method":      "Set",
			"available":   available,
			"rolled_back": rolledBack,
		}).WithError(err).Error("Failed to update provider availability")
		return fmt.Errorf("status: could not update availability: %w", err)
	}
	pending.Confirm()
	return nil
}

// ApplyServer принимает значение, присланное сервером
func (a *Availability) ApplyServer(status string) {
	a.state.Set(status == protocol.ProviderAvailable)
}

// Announcement - сообщение канала с текущей доступностью
func (a *Availability) Announcement() protocol.UpdateProviderStatus {
	status := protocol.ProviderUnavailable
	if a.Available() {
		status = protocol.ProviderAvailable
	}
	return protocol.UpdateProviderStatus{Status: status}
}
