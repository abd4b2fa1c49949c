package service

//go:generate mockgen -source=incident.go -destination=mocks/incident_mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shenikar/emergency_response_client/internal/backend"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/session"
	"github.com/shenikar/emergency_response_client/internal/status"
	"github.com/sirupsen/logrus"
)

// ErrRoleNotAllowed - операция недоступна роли клиента
var ErrRoleNotAllowed = errors.New("operation is not allowed for this role")

const (
	journalTimeout   = 5 * time.Second
	journalQueueSize = 64
)

// IncidentRepository определяет контракт кэша снимков и журнала переходов
type IncidentRepository interface {
	GetIncidentFromCache(ctx context.Context, id string) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id string) error
	SaveTransition(ctx context.Context, tr *models.StatusTransition) error
	ListTransitions(ctx context.Context, incidentID string) ([]*models.StatusTransition, error)
}

// Backend - REST сервер координации
type Backend interface {
	CreateResponse(ctx context.Context, requestID string) (*backend.CreateResponseResult, error)
	GetResponse(ctx context.Context, incidentID string) (*models.Incident, error)
}

// Session - контекст сессии клиента
type Session interface {
	Role() models.Role
	Engage(ctx context.Context, incident *models.Incident, path *models.RoutePath) error
	RequestTransition(ctx context.Context, incidentID string, to models.Status, description string) (*models.StatusTransition, error)
	SetAvailability(ctx context.Context, available bool) error
	Incident(incidentID string) (*models.Incident, bool)
	Route(incidentID string) (route.View, error)
	Snapshot() session.Snapshot
	OnTransition(fn status.Listener)
}

// IncidentService определяет контракт сценариев клиента над инцидентами
type IncidentService interface {
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	AcceptRequest(ctx context.Context, requestID string) (*models.Incident, error)
	UpdateStatus(ctx context.Context, id string, to models.Status, description string) (*models.Incident, error)
	SetAvailability(ctx context.Context, available bool) error
	Route(ctx context.Context, id string) (*route.View, error)
	History(ctx context.Context, id string) ([]*models.StatusTransition, error)
	Session(ctx context.Context) session.Snapshot
}

type incidentService struct {
	repo    IncidentRepository
	backend Backend
	session Session
	logger  *logrus.Logger
	journal chan models.StatusTransition
}

// NewIncidentService подписывается на переходы сессии, чтобы вести
// журнал и сбрасывать кэш для переходов любого источника. Запись идет
// в отдельной горутине до отмены ctx.
func NewIncidentService(ctx context.Context, repo IncidentRepository, backend Backend, sess Session, logger *logrus.Logger) IncidentService {
	s := &incidentService{
		repo:    repo,
		backend: backend,
		session: sess,
		logger:  logger,
		journal: make(chan models.StatusTransition, journalQueueSize),
	}
	go s.runJournal(ctx)
	sess.OnTransition(s.enqueueTransition)
	return s
}

// GetIncident: активная сессия, затем кэш, затем сервер
func (s *incidentService) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Debug("Fetching incident by ID")

	if incident, ok := s.session.Incident(id); ok {
		return incident, nil
	}

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident cache")
	}
	if cached != nil {
		log.Debug("Incident served from cache")
		return cached, nil
	}

	incident, err := s.backend.GetResponse(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from server")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}
	log.Info("Incident fetched successfully")
	return incident, nil
}

// AcceptRequest - исполнитель принимает заявку и становится участником
func (s *incidentService) AcceptRequest(ctx context.Context, requestID string) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":    "incident",
		"method":     "AcceptRequest",
		"request_id": requestID,
	})
	if s.session.Role() != models.RoleProvider {
		return nil, fmt.Errorf("service: could not accept request: %w", ErrRoleNotAllowed)
	}
	log.Info("Accepting emergency request")

	result, err := s.backend.CreateResponse(ctx, requestID)
	if err != nil {
		log.WithError(err).Error("Failed to create emergency response")
		return nil, fmt.Errorf("service: could not accept request: %w", err)
	}

	incident := result.Incident
	if incident.Status == "" || incident.Status == models.StatusPending {
		incident.Status = models.StatusAssigned
	}
	log = log.WithField("incident_id", incident.ID)

	if err := s.session.Engage(ctx, &incident, result.Path); err != nil {
		log.WithError(err).Error("Failed to engage accepted incident")
		return nil, fmt.Errorf("service: could not engage incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, &incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}
	log.Info("Emergency request accepted")
	return &incident, nil
}

// UpdateStatus - переход по действию пользователя; состояние меняется
// только после подтверждения сервера
func (s *incidentService) UpdateStatus(ctx context.Context, id string, to models.Status, description string) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": id,
		"status":      to,
	})
	log.Info("Attempting to update incident status")

	if _, err := s.session.RequestTransition(ctx, id, to, description); err != nil {
		log.WithError(err).Warn("Status transition was not applied")
		return nil, fmt.Errorf("service: could not update status: %w", err)
	}

	incident, ok := s.session.Incident(id)
	if !ok {
		return nil, fmt.Errorf("service: could not update status: %w", models.ErrIncidentNotFound)
	}
	log.WithField("current", incident.Status).Info("Incident status updated")
	return incident, nil
}

// SetAvailability переключает доступность исполнителя
func (s *incidentService) SetAvailability(ctx context.Context, available bool) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "SetAvailability",
		"available": available,
	})
	if s.session.Role() != models.RoleProvider {
		return fmt.Errorf("service: could not set availability: %w", ErrRoleNotAllowed)
	}
	if err := s.session.SetAvailability(ctx, available); err != nil {
		log.WithError(err).Warn("Availability change rolled back")
		return fmt.Errorf("service: could not set availability: %w", err)
	}
	log.Info("Availability updated")
	return nil
}

// Route возвращает состояние маршрута активного инцидента
func (s *incidentService) Route(ctx context.Context, id string) (*route.View, error) {
	view, err := s.session.Route(id)
	if err != nil {
		return nil, fmt.Errorf("service: could not get route: %w", err)
	}
	return &view, nil
}

// History возвращает журнал переходов; без журнала - пустой список
func (s *incidentService) History(ctx context.Context, id string) ([]*models.StatusTransition, error) {
	transitions, err := s.repo.ListTransitions(ctx, id)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service":     "incident",
			"method":      "History",
			"incident_id": id,
		}).WithError(err).Error("Failed to list status transitions")
		return nil, fmt.Errorf("service: could not list history: %w", err)
	}
	return transitions, nil
}

func (s *incidentService) Session(ctx context.Context) session.Snapshot {
	return s.session.Snapshot()
}

// enqueueTransition вызывается из цикла доставки канала и не ждет I/O
func (s *incidentService) enqueueTransition(tr models.StatusTransition) {
	select {
	case s.journal <- tr:
	default:
		s.logger.WithFields(logrus.Fields{
			"service":     "incident",
			"incident_id": tr.IncidentID,
			"to":          tr.To,
		}).Warn("Status journal queue is full, transition not recorded")
	}
}

func (s *incidentService) runJournal(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// остаток очереди дописываем без блокировки
			for {
				select {
				case tr := <-s.journal:
					s.recordTransition(tr)
				default:
					return
				}
			}
		case tr := <-s.journal:
			s.recordTransition(tr)
		}
	}
}

// recordTransition пишет переход в журнал и сбрасывает кэш снимка;
// ошибки только логируются
func (s *incidentService) recordTransition(tr models.StatusTransition) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "recordTransition",
		"incident_id": tr.IncidentID,
		"origin":      tr.Origin,
	})
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := s.repo.SaveTransition(ctx, &tr); err != nil {
		log.WithError(err).Error("Failed to journal status transition")
	}
	if err := s.repo.InvalidateIncidentCache(ctx, tr.IncidentID); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
}
