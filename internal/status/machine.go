// Package status ведет жизненный цикл статуса инцидента на клиенте.
// Сервер авторитетен: локальные действия применяются только после
// подтверждения REST, переходы из канала применяются как есть.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=machine.go -destination=mocks/updater_mock.go -package=mocks

// Updater подтверждает переход статуса на сервере
type Updater interface {
	UpdateStatus(ctx context.Context, incidentID string, status models.Status, description string) error
}

// Listener получает каждый примененный переход
type Listener func(tr models.StatusTransition)

// Machine - статус одного инцидента
type Machine struct {
	incidentID string
	updater    Updater
	logger     *logrus.Logger
	now        func() time.Time

	mu          sync.Mutex
	status      models.Status
	description string
	listeners   []Listener
}

func NewMachine(incident *models.Incident, updater Updater, logger *logrus.Logger) *Machine {
	status := incident.Status
	if !status.Valid() {
		status = models.StatusPending
	}
	return &Machine{
		incidentID:  incident.ID,
		updater:     updater,
		logger:      logger,
		now:         time.Now,
		status:      status,
		description: incident.StatusDescription,
	}
}

func (m *Machine) IncidentID() string {
	return m.incidentID
}

// Current возвращает текущий статус
func (m *Machine) Current() models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Description - описание последнего перехода
func (m *Machine) Description() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.description
}

// OnTransition подписывает на примененные переходы
func (m *Machine) OnTransition(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Apply применяет переход. Повтор текущего статуса - no-op (nil, nil).
func (m *Machine) Apply(to models.Status, description string, origin models.Origin) (*models.StatusTransition, error) {
	m.mu.Lock()
	from := m.status
	changed, err := validate(from, to)
	if err != nil || !changed {
		m.mu.Unlock()
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"component":   "status",
				"incident_id": m.incidentID,
				"from":        from,
				"to":          to,
				"origin":      origin,
			}).WithError(err).Warn("Rejected status transition")
		}
		return nil, err
	}

	m.status = to
	m.description = description
	tr := models.StatusTransition{
		IncidentID:  m.incidentID,
		From:        from,
		To:          to,
		Description: description,
		Origin:      origin,
		At:          m.now().UTC(),
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"component":   "status",
		"incident_id": m.incidentID,
		"from":        from,
		"to":          to,
		"origin":      origin,
	}).Info("Status transition applied")

	for _, l := range listeners {
		l(tr)
	}
	return &tr, nil
}

// RequestTransition подтверждает переход на сервере и только потом
// применяет его. В канал переход не отправляется: сервер сам
// рассылает его всем участникам комнаты.
func (m *Machine) RequestTransition(ctx context.Context, to models.Status, description string) (*models.StatusTransition, error) {
	current := m.Current()
	changed, err := validate(current, to)
	if err != nil {
		return nil, fmt.Errorf("status: could not request transition: %w", err)
	}
	if !changed {
		return nil, nil
	}

	if err := m.updater.UpdateStatus(ctx, m.incidentID, to, description); err != nil {
		m.logger.WithFields(logrus.Fields{
			"component":   "status",
			"method":      "RequestTransition",
			"incident_id": m.incidentID,
			"to":          to,
		}).WithError(err).Error("Server did not confirm status transition")
		return nil, fmt.Errorf("status: could not confirm transition: %w", err)
	}

	// за время запроса переход мог уже прийти из канала
	tr, err := m.Apply(to, description, models.OriginLocal)
	if err != nil {
		return nil, fmt.Errorf("status: could not apply confirmed transition: %w", err)
	}
	return tr, nil
}

// validate возвращает changed=false для повтора текущего статуса
func validate(from, to models.Status) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, to)
	}
	if from == to {
		return false, nil
	}
	if from.IsTerminal() {
		return false, fmt.Errorf("%w: %s is final", models.ErrIncidentTerminal, from)
	}
	if to.IsTerminal() {
		return true, nil
	}
	if to.Rank() < from.Rank() {
		return false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	return true, nil
}
