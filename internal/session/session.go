// Package session - контекст сессии одной авторизованной стороны.
// Владеет каналом, потоком позиции, членством в комнате, машиной
// статусов и показом маршрута; глобального состояния нет.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/shenikar/emergency_response_client/internal/channel"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/shenikar/emergency_response_client/internal/room"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/status"
	"github.com/sirupsen/logrus"
)

// Channel - канал реального времени, общий на процесс
type Channel interface {
	room.Channel
	State() channel.State
}

// Streamer - контроллер потока позиции
type Streamer interface {
	Start(ctx context.Context, incidentID string, role models.Role) error
	Stop()
	Active() (string, models.Role, bool)
}

// Rooms - членство в комнатах инцидентов
type Rooms interface {
	Join(incident *models.Incident, bindings ...room.Binding) error
	Leave(incidentID string)
	LeaveAll()
	Joined(incidentID string) bool
}

// Notifier публикует уведомления пользователю. Вызывается из цикла
// доставки канала, поэтому Publish не должен ждать I/O.
type Notifier interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Deps - зависимости сессии
type Deps struct {
	Role      models.Role
	UserID    string
	Channel   Channel
	Streaming Streamer
	Rooms     Rooms
	Presenter *route.Presenter
	Updater   status.Updater
	// Availability - только для исполнителя
	Availability *status.Availability
	Notifier     Notifier
	Logger       *logrus.Logger
}

// Session - состояние стороны в текущем инциденте
type Session struct {
	role         models.Role
	userID       string
	ch           Channel
	streaming    Streamer
	rooms        Rooms
	presenter    *route.Presenter
	updater      status.Updater
	availability *status.Availability
	notifier     Notifier
	logger       *logrus.Logger

	mu        sync.Mutex
	incident  *models.Incident
	machine   *status.Machine
	engaged   bool
	listeners []status.Listener
	subs      []*channel.Subscription
	closed    bool
}

func New(d Deps) *Session {
	s := &Session{
		role:         d.Role,
		userID:       d.UserID,
		ch:           d.Channel,
		streaming:    d.Streaming,
		rooms:        d.Rooms,
		presenter:    d.Presenter,
		updater:      d.Updater,
		availability: d.Availability,
		notifier:     d.Notifier,
		logger:       d.Logger,
	}

	s.subs = append(s.subs,
		s.ch.On(protocol.KindResponseCreated, s.handleResponseCreated),
		s.ch.On(protocol.KindNotificationCreated, s.handleNotification),
		s.ch.OnStateChange(s.handleState),
	)
	if s.role == models.RoleProvider && s.availability != nil {
		s.subs = append(s.subs, s.ch.On(protocol.KindProviderStatusUpdated, s.handleProviderStatus))
	}
	return s
}

// Role - сторона, от имени которой работает сессия
func (s *Session) Role() models.Role {
	return s.role
}

// OnTransition подписывает на переходы статуса любого инцидента сессии
func (s *Session) OnTransition(fn status.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Engage делает инцидент активным в строгом порядке: обработчики,
// вход в комнату, поток позиции. Повторный вызов для активного
// инцидента ничего не делает; другой активный инцидент сначала сворачивается.
func (s *Session) Engage(ctx context.Context, incident *models.Incident, path *models.RoutePath) error {
	log := s.logger.WithFields(logrus.Fields{
		"component":   "session",
		"method":      "Engage",
		"incident_id": incident.ID,
	})

	if incident.Status.IsTerminal() {
		return fmt.Errorf("session: could not engage: %w", models.ErrIncidentTerminal)
	}
	if !incident.ReadyForRoom() {
		return fmt.Errorf("session: could not engage: %w", models.ErrRoomNotReady)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session: could not engage: session closed")
	}
	if s.engaged && s.incident.ID == incident.ID {
		log.Debug("Incident already engaged")
		return nil
	}
	if s.engaged {
		s.disengageLocked("switching incident")
	}

	snapshot := *incident
	if !snapshot.Status.Valid() {
		snapshot.Status = models.StatusPending
	}
	machine := status.NewMachine(&snapshot, s.updater, s.logger)
	machine.OnTransition(s.handleTransition)

	s.presenter.Reset()
	s.presenter.SetPath(path)

	bindings := []room.Binding{
		{Kind: protocol.KindStatusUpdated, Handler: s.handleStatus},
		{Kind: counterpartLocationKind(s.role), Handler: s.handleCounterpartLocation},
	}
	if err := s.rooms.Join(&snapshot, bindings...); err != nil {
		log.WithError(err).Error("Failed to join incident room")
		return fmt.Errorf("session: could not join room: %w", err)
	}

	s.incident = &snapshot
	s.machine = machine
	s.engaged = true

	// сбой позиционирования не отменяет участие в инциденте
	if err := s.streaming.Start(ctx, snapshot.ID, s.role); err != nil {
		log.WithError(err).Warn("Location streaming is not available")
	}

	log.Info("Incident engaged")
	return nil
}

// counterpartLocationKind - событие с позицией другой стороны
func counterpartLocationKind(role models.Role) protocol.Kind {
	if role == models.RoleProvider {
		return protocol.KindRequesterLocationUpdated
	}
	return protocol.KindProviderLocationUpdated
}

// disengageLocked останавливает поток, выходит из комнаты и
// освобождает обработчики; снимок инцидента остается для чтения
func (s *Session) disengageLocked(reason string) {
	if !s.engaged {
		return
	}
	s.engaged = false
	s.streaming.Stop()
	s.rooms.Leave(s.incident.ID)
	s.logger.WithFields(logrus.Fields{
		"component":   "session",
		"incident_id": s.incident.ID,
		"reason":      reason,
	}).Info("Incident disengaged")
}

// Disengage сворачивает активный инцидент
func (s *Session) Disengage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disengageLocked("requested")
}

// RequestTransition - переход статуса по действию пользователя,
// применяется только после подтверждения сервера
func (s *Session) RequestTransition(ctx context.Context, incidentID string, to models.Status, description string) (*models.StatusTransition, error) {
	machine, err := s.machineFor(incidentID)
	if err != nil {
		return nil, err
	}
	return machine.RequestTransition(ctx, to, description)
}

func (s *Session) machineFor(incidentID string) (*status.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine == nil || (incidentID != "" && s.machine.IncidentID() != incidentID) {
		return nil, fmt.Errorf("session: %w", models.ErrNoActiveIncident)
	}
	return s.machine, nil
}

// SetAvailability переключает доступность исполнителя с откатом при ошибке
func (s *Session) SetAvailability(ctx context.Context, available bool) error {
	if s.availability == nil {
		return fmt.Errorf("session: availability is only managed by providers")
	}
	if err := s.availability.Set(ctx, available); err != nil {
		return err
	}
	s.announceAvailability()
	return nil
}

func (s *Session) announceAvailability() {
	msg := s.availability.Announcement()
	s.mu.Lock()
	if s.engaged {
		msg.EmergencyResponseID = s.incident.ID
	}
	s.mu.Unlock()
	s.ch.Send(msg)
}

// Incident возвращает снимок инцидента сессии
func (s *Session) Incident(incidentID string) (*models.Incident, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incident == nil || s.incident.ID != incidentID {
		return nil, false
	}
	cp := *s.incident
	return &cp, true
}

// Route - текущее состояние маршрута для инцидента сессии
func (s *Session) Route(incidentID string) (route.View, error) {
	if _, ok := s.Incident(incidentID); !ok {
		return route.View{}, fmt.Errorf("session: %w", models.ErrNoActiveIncident)
	}
	return s.presenter.Snapshot(), nil
}

// Close сворачивает инцидент и освобождает обработчики сессии
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.disengageLocked("session closed")
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Release()
	}
}
