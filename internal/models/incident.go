package models

import (
	"time"
)

// Status - статус экстренного реагирования
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusEnRoute   Status = "en_route"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// statusRank задает порядок жизненного цикла; терминальные статусы равноправны
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusAssigned:  1,
	StatusEnRoute:   2,
	StatusArrived:   3,
	StatusCompleted: 4,
	StatusRejected:  4,
}

// Valid проверяет, что статус входит в известный набор
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal - после completed или rejected инцидент не меняется
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Rank возвращает позицию статуса в жизненном цикле (-1 для неизвестного)
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Role - сторона инцидента, от имени которой работает клиент
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleProvider
}

// Counterpart возвращает противоположную сторону
func (r Role) Counterpart() Role {
	if r == RoleProvider {
		return RoleRequester
	}
	return RoleProvider
}

// Incident - закешированная на клиенте копия экстренного реагирования.
// Источник истины - сервер.
type Incident struct {
	ID                  string    `json:"id"`
	RequesterID         string    `json:"userId"`
	ProviderID          string    `json:"providerId"`
	OriginLocation      *Point    `json:"originLocation,omitempty"`
	DestinationLocation *Point    `json:"destinationLocation,omitempty"`
	Status              Status    `json:"status"`
	StatusDescription   string    `json:"statusDescription,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
}

// ReadyForRoom - для входа в комнату нужны обе стороны
func (i *Incident) ReadyForRoom() bool {
	return i != nil && i.ID != "" && i.RequesterID != "" && i.ProviderID != ""
}
