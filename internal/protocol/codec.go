package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shenikar/emergency_response_client/internal/models"
)

// Envelope - кадр на проводе: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode упаковывает сообщение в кадр
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", m.Kind(), err)
	}
	frame, err := json.Marshal(Envelope{Event: m.Kind().Event(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", m.Kind(), err)
	}
	return frame, nil
}

// Decode разбирает кадр в типизированное сообщение
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", models.ErrMalformedPayload, err)
	}
	return DecodeEvent(env.Event, env.Data)
}

// UnknownEventError - событие вне закрытого набора
type UnknownEventError struct {
	Event string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %q", e.Event)
}

// DecodeEvent разбирает полезную нагрузку события
func DecodeEvent(event string, data []byte) (Message, error) {
	kind, ok := KindOf(event)
	if !ok {
		return nil, &UnknownEventError{Event: event}
	}

	var (
		msg Message
		err error
	)
	switch kind {
	case KindJoinRoom:
		var m JoinRoom
		err = unmarshal(data, &m)
		msg = m
	case KindLeaveRoom:
		var m LeaveRoom
		err = unmarshal(data, &m)
		msg = m
	case KindProviderLocation, KindRequesterLocation:
		m := LocationReport{Role: models.RoleRequester}
		if kind == KindProviderLocation {
			m.Role = models.RoleProvider
		}
		if err = unmarshal(data, &m); err == nil {
			err = m.Location.Validate()
		}
		msg = m
	case KindProviderLocationUpdated, KindRequesterLocationUpdated:
		m := LocationUpdate{From: models.RoleRequester}
		if kind == KindProviderLocationUpdated {
			m.From = models.RoleProvider
		}
		if err = unmarshal(data, &m); err == nil {
			err = m.Location.Validate()
		}
		msg = m
	case KindResponseCreated:
		var m ResponseCreated
		err = unmarshal(data, &m)
		msg = m
	case KindStatusUpdated:
		var m StatusUpdated
		err = unmarshal(data, &m)
		msg = m
	case KindUpdateProviderStatus:
		var m UpdateProviderStatus
		err = unmarshal(data, &m)
		msg = m
	case KindProviderStatusUpdated:
		var m ProviderStatusUpdated
		err = unmarshal(data, &m)
		msg = m
	case KindNotificationCreated:
		var m Notification
		err = unmarshal(data, &m)
		msg = m
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", event, err)
	}
	return msg, nil
}

func unmarshal(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: empty payload", models.ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		if errors.Is(err, models.ErrMalformedPayload) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	return nil
}
