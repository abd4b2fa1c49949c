package session

import (
	"context"

	"github.com/shenikar/emergency_response_client/internal/channel"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/status"
	"github.com/sirupsen/logrus"
)

// handleResponseCreated - сервер назначил исполнителя на заявку
func (s *Session) handleResponseCreated(msg protocol.Message) {
	created, ok := msg.(protocol.ResponseCreated)
	if !ok {
		return
	}
	incident := created.Incident
	log := s.logger.WithFields(logrus.Fields{
		"component":   "session",
		"method":      "handleResponseCreated",
		"incident_id": incident.ID,
	})

	if !s.concerns(&incident) {
		log.Debug("Response created for another party, ignoring")
		return
	}

	path, err := route.ParseOptimalPath(created.OptimalPath)
	if err != nil {
		log.WithError(err).Warn("Optimal path is malformed, continuing without path")
	}

	// назначение переводит заявку из pending в assigned
	if incident.Status == "" || incident.Status == models.StatusPending {
		incident.Status = models.StatusAssigned
	}
	if err := s.Engage(context.Background(), &incident, path); err != nil {
		log.WithError(err).Error("Failed to engage created response")
	}
}

// concerns - инцидент относится к стороне этой сессии
func (s *Session) concerns(incident *models.Incident) bool {
	if s.role == models.RoleProvider {
		return incident.ProviderID == s.userID
	}
	return incident.RequesterID == s.userID
}

// handleStatus применяет авторитетный переход из канала
func (s *Session) handleStatus(msg protocol.Message) {
	update, ok := msg.(protocol.StatusUpdated)
	if !ok {
		return
	}
	machine, err := s.machineFor(update.EmergencyResponseID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"component":   "session",
			"incident_id": update.EmergencyResponseID,
		}).Debug("Status update for inactive incident, ignoring")
		return
	}
	// ошибки перехода уже залогированы машиной, повтор - no-op
	_, _ = machine.Apply(update.Status, update.Description, models.OriginServer)
}

// handleTransition - общий слушатель машины статусов
func (s *Session) handleTransition(tr models.StatusTransition) {
	s.mu.Lock()
	if s.incident != nil && s.incident.ID == tr.IncidentID {
		s.incident.Status = tr.To
		s.incident.StatusDescription = tr.Description
		s.incident.UpdatedAt = tr.At
	}
	listeners := append([]status.Listener(nil), s.listeners...)
	if tr.To.IsTerminal() && s.incident != nil && s.incident.ID == tr.IncidentID {
		s.disengageLocked("status " + string(tr.To))
	}
	s.mu.Unlock()

	if s.shouldNotify(tr) {
		s.publish(models.Notification{
			UserID:     s.userID,
			IncidentID: tr.IncidentID,
			Title:      notificationTitle(tr.To),
			Message:    tr.Description,
			Source:     models.NotificationSourceStatus,
		})
	}

	for _, l := range listeners {
		l(tr)
	}
}

// shouldNotify - уведомление получает только заявитель и только о
// действиях другой стороны
func (s *Session) shouldNotify(tr models.StatusTransition) bool {
	if s.role != models.RoleRequester || tr.Origin != models.OriginServer {
		return false
	}
	return tr.To == models.StatusArrived || tr.To == models.StatusRejected
}

func notificationTitle(st models.Status) string {
	switch st {
	case models.StatusArrived:
		return "Help has arrived"
	case models.StatusRejected:
		return "Your request was rejected"
	default:
		return "Emergency response updated"
	}
}

func (s *Session) handleCounterpartLocation(msg protocol.Message) {
	update, ok := msg.(protocol.LocationUpdate)
	if !ok {
		return
	}
	s.presenter.UpdatePosition(update.From, update.Location.LatLng())
}

func (s *Session) handleProviderStatus(msg protocol.Message) {
	update, ok := msg.(protocol.ProviderStatusUpdated)
	if !ok {
		return
	}
	s.availability.ApplyServer(update.Status)
}

func (s *Session) handleNotification(msg protocol.Message) {
	n, ok := msg.(protocol.Notification)
	if !ok {
		return
	}
	s.mu.Lock()
	incidentID := ""
	if s.incident != nil {
		incidentID = s.incident.ID
	}
	s.mu.Unlock()

	s.publish(models.Notification{
		UserID:     s.userID,
		IncidentID: incidentID,
		Title:      n.Title,
		Message:    n.Message,
		Source:     models.NotificationSourceServer,
	})
}

func (s *Session) publish(n models.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(context.Background(), n); err != nil {
		s.logger.WithFields(logrus.Fields{
			"component":   "session",
			"incident_id": n.IncidentID,
		}).WithError(err).Error("Failed to publish notification")
	}
}

// handleState: после (пере)подключения исполнитель заново объявляет
// доступность, сервер не помнит ее между сокетами
func (s *Session) handleState(state channel.State) {
	if state != channel.StateConnected || s.role != models.RoleProvider || s.availability == nil {
		return
	}
	s.announceAvailability()
}
