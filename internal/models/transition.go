package models

import "time"

// Origin - источник перехода статуса
type Origin string

const (
	// OriginServer - авторитетное сообщение сервера из канала
	OriginServer Origin = "server"
	// OriginLocal - действие пользователя, подтвержденное сервером
	OriginLocal Origin = "local"
)

// StatusTransition - примененный переход статуса (запись журнала)
type StatusTransition struct {
	ID          int64     `json:"id"`
	IncidentID  string    `json:"incidentId"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Description string    `json:"description,omitempty"`
	Origin      Origin    `json:"origin"`
	At          time.Time `json:"at"`
}

// Notification - уведомление для пользователя, уходит во внешний
// сервис доставки
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	IncidentID string    `json:"incidentId,omitempty"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Источники уведомлений
const (
	NotificationSourceStatus = "status"
	NotificationSourceServer = "server"
)
