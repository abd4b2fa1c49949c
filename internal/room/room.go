// Package room ведет членство клиента в комнатах инцидентов.
// Обработчики комнаты регистрируются до отправки join, чтобы не
// пропустить сообщения, пришедшие сразу после входа.
package room

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shenikar/emergency_response_client/internal/channel"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Channel - то, что членству нужно от канала реального времени
type Channel interface {
	Send(msg protocol.Message)
	On(kind protocol.Kind, handler channel.Handler) *channel.Subscription
	OnStateChange(fn func(channel.State)) *channel.Subscription
}

// Binding - обработчик, живущий столько же, сколько членство в комнате
type Binding struct {
	Kind    protocol.Kind
	Handler channel.Handler
}

type room struct {
	join protocol.JoinRoom
	subs []*channel.Subscription
}

// Membership - набор комнат, в которых состоит клиент
type Membership struct {
	ch     Channel
	logger *logrus.Logger

	mu       sync.Mutex
	rooms    map[string]*room
	stateSub *channel.Subscription
}

func NewMembership(ch Channel, logger *logrus.Logger) *Membership {
	m := &Membership{
		ch:     ch,
		logger: logger,
		rooms:  make(map[string]*room),
	}
	m.stateSub = ch.OnStateChange(m.handleState)
	return m
}

// Join регистрирует обработчики и входит в комнату инцидента.
// Повторный вход в ту же комнату ничего не делает.
func (m *Membership) Join(incident *models.Incident, bindings ...Binding) error {
	if !incident.ReadyForRoom() {
		return fmt.Errorf("room: could not join: %w", models.ErrRoomNotReady)
	}

	log := m.logger.WithFields(logrus.Fields{
		"component":   "room",
		"method":      "Join",
		"incident_id": incident.ID,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[incident.ID]; ok {
		log.Debug("Already in incident room")
		return nil
	}

	r := &room{
		join: protocol.JoinRoom{
			EmergencyResponseID: incident.ID,
			UserID:              incident.RequesterID,
			ProviderID:          incident.ProviderID,
		},
	}
	for _, b := range bindings {
		r.subs = append(r.subs, m.ch.On(b.Kind, b.Handler))
	}
	m.rooms[incident.ID] = r
	m.ch.Send(r.join)

	log.Info("Joined incident room")
	return nil
}

// Leave освобождает обработчики комнаты и выходит из нее
func (m *Membership) Leave(incidentID string) {
	m.mu.Lock()
	r, ok := m.rooms[incidentID]
	if ok {
		delete(m.rooms, incidentID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.leave(r)
}

func (m *Membership) leave(r *room) {
	for _, sub := range r.subs {
		sub.Release()
	}
	m.ch.Send(protocol.LeaveRoom{EmergencyResponseID: r.join.EmergencyResponseID})
	m.logger.WithFields(logrus.Fields{
		"component":   "room",
		"incident_id": r.join.EmergencyResponseID,
	}).Info("Left incident room")
}

// LeaveAll выходит из всех комнат
func (m *Membership) LeaveAll() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*room)
	m.mu.Unlock()

	for _, r := range rooms {
		m.leave(r)
	}
}

// Close выходит из всех комнат и отписывается от состояния канала
func (m *Membership) Close() {
	m.LeaveAll()
	m.stateSub.Release()
}

// Joined - клиент состоит в комнате инцидента
func (m *Membership) Joined(incidentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[incidentID]
	return ok
}

// Rooms возвращает идентификаторы комнат в стабильном порядке
func (m *Membership) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// handleState повторяет вход в комнаты после переподключения:
// сервер забывает членство вместе с сокетом
func (m *Membership) handleState(state channel.State) {
	if state != channel.StateConnected {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rooms {
		m.ch.Send(r.join)
		m.logger.WithFields(logrus.Fields{
			"component":   "room",
			"incident_id": id,
		}).Info("Rejoined incident room after reconnect")
	}
}
