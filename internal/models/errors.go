package models

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied - пользователь не дал доступ к геолокации
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrPositionUnavailable - устройство не смогло определить местоположение
	ErrPositionUnavailable = errors.New("position unavailable")

	// ErrNetwork - сбой транспорта (канал или REST)
	ErrNetwork = errors.New("network error")

	// ErrAuthRejected - сервер отклонил учетные данные при подключении
	ErrAuthRejected = errors.New("auth rejected")

	// ErrServerRejected - REST ответил 4xx/5xx
	ErrServerRejected = errors.New("server rejected request")

	// ErrMalformedPayload - входящий JSON не удалось разобрать
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidTransition - переход статуса назад по жизненному циклу
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrIncidentTerminal - инцидент уже завершен или отклонен
	ErrIncidentTerminal = errors.New("incident is terminal")

	// ErrIncidentNotFound - инцидент не найден
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrRoomNotReady - у инцидента нет одной из сторон, в комнату входить рано
	ErrRoomNotReady = errors.New("incident has no requester or provider")

	// ErrNoActiveIncident - сессия не ведет ни одного инцидента
	ErrNoActiveIncident = errors.New("no active incident")
)

// ServerRejectedError несет код ответа REST
type ServerRejectedError struct {
	StatusCode int
	Message    string
}

func (e *ServerRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected request: status %d", e.StatusCode)
	}
	return fmt.Sprintf("server rejected request: status %d: %s", e.StatusCode, e.Message)
}

func (e *ServerRejectedError) Is(target error) bool {
	return target == ErrServerRejected
}
