package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/shenikar/emergency_response_client/internal/models"
)

// Message - любое сообщение канала
type Message interface {
	Kind() Kind
}

// JoinRoom - вход в комнату инцидента
type JoinRoom struct {
	EmergencyResponseID string `json:"emergencyResponseId"`
	UserID              string `json:"userId"`
	ProviderID          string `json:"providerId"`
}

func (JoinRoom) Kind() Kind { return KindJoinRoom }

// LeaveRoom - выход из комнаты инцидента
type LeaveRoom struct {
	EmergencyResponseID string `json:"emergencyResponseId"`
}

func (LeaveRoom) Kind() Kind { return KindLeaveRoom }

// LocationReport - исходящее местоположение. Событие и имя поля
// идентификатора зависят от роли отправителя.
type LocationReport struct {
	Role       models.Role
	IncidentID string
	Location   models.Point
}

func (m LocationReport) Kind() Kind {
	if m.Role == models.RoleProvider {
		return KindProviderLocation
	}
	return KindRequesterLocation
}

type providerLocationWire struct {
	EmergencyResponseID string       `json:"emergencyResponseId"`
	Location            models.Point `json:"location"`
}

type requesterLocationWire struct {
	IncidentID string       `json:"incidentId"`
	Location   models.Point `json:"location"`
}

func (m LocationReport) MarshalJSON() ([]byte, error) {
	if m.Role == models.RoleProvider {
		return json.Marshal(providerLocationWire{EmergencyResponseID: m.IncidentID, Location: m.Location})
	}
	return json.Marshal(requesterLocationWire{IncidentID: m.IncidentID, Location: m.Location})
}

func (m *LocationReport) UnmarshalJSON(data []byte) error {
	var wire struct {
		EmergencyResponseID string       `json:"emergencyResponseId"`
		IncidentID          string       `json:"incidentId"`
		Location            models.Point `json:"location"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.IncidentID = wire.EmergencyResponseID
	if m.IncidentID == "" {
		m.IncidentID = wire.IncidentID
	}
	m.Location = wire.Location
	return nil
}

// LocationUpdate - входящее местоположение собеседника.
// From - чья это позиция.
type LocationUpdate struct {
	From     models.Role  `json:"-"`
	Location models.Point `json:"location"`
}

func (m LocationUpdate) Kind() Kind {
	if m.From == models.RoleProvider {
		return KindProviderLocationUpdated
	}
	return KindRequesterLocationUpdated
}

// ResponseCreated - сервер назначил исполнителя; OptimalPath разбирается
// отдельно, так как его порча не должна ломать само сообщение.
type ResponseCreated struct {
	Incident    models.Incident `json:"emergencyResponse"`
	OptimalPath json.RawMessage `json:"optimalPath,omitempty"`
}

func (ResponseCreated) Kind() Kind { return KindResponseCreated }

func (m *ResponseCreated) UnmarshalJSON(data []byte) error {
	var wire struct {
		EmergencyResponse json.RawMessage `json:"emergencyResponse"`
		OptimalPath       json.RawMessage `json:"optimalPath"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	incident, err := DecodeIncident(wire.EmergencyResponse)
	if err != nil {
		return err
	}
	m.Incident = *incident
	m.OptimalPath = wire.OptimalPath
	return nil
}

// DecodeIncident принимает инцидент как объект или как массив
// (REST отдает emergencyResponse[]); берется первый элемент.
func DecodeIncident(raw json.RawMessage) (*models.Incident, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: emergencyResponse is missing", models.ErrMalformedPayload)
	}
	if raw[0] == '[' {
		var list []models.Incident
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: emergencyResponse is empty", models.ErrMalformedPayload)
		}
		return &list[0], nil
	}
	var incident models.Incident
	if err := json.Unmarshal(raw, &incident); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	return &incident, nil
}

// StatusUpdated - авторитетный переход статуса от сервера.
// Описание приходит либо в message, либо в updateDescription.
type StatusUpdated struct {
	EmergencyResponseID string        `json:"emergencyResponseId,omitempty"`
	Status              models.Status `json:"statusUpdate"`
	Description         string        `json:"updateDescription,omitempty"`
	ProviderID          string        `json:"providerId,omitempty"`
	UserID              string        `json:"userId,omitempty"`
}

func (StatusUpdated) Kind() Kind { return KindStatusUpdated }

func (m *StatusUpdated) UnmarshalJSON(data []byte) error {
	var wire struct {
		EmergencyResponseID string        `json:"emergencyResponseId"`
		Status              models.Status `json:"statusUpdate"`
		Message             string        `json:"message"`
		UpdateDescription   string        `json:"updateDescription"`
		ProviderID          string        `json:"providerId"`
		UserID              string        `json:"userId"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if !wire.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrMalformedPayload, wire.Status)
	}
	m.EmergencyResponseID = wire.EmergencyResponseID
	m.Status = wire.Status
	m.Description = wire.UpdateDescription
	if m.Description == "" {
		m.Description = wire.Message
	}
	m.ProviderID = wire.ProviderID
	m.UserID = wire.UserID
	return nil
}

// Статусы доступности исполнителя
const (
	ProviderAvailable   = "available"
	ProviderUnavailable = "unavailable"
)

// UpdateProviderStatus - исходящее объявление доступности исполнителя
type UpdateProviderStatus struct {
	Status              string `json:"status"`
	EmergencyResponseID string `json:"emergencyResponseId,omitempty"`
}

func (UpdateProviderStatus) Kind() Kind { return KindUpdateProviderStatus }

// ProviderStatusUpdated - сервер подтвердил доступность исполнителя
type ProviderStatusUpdated struct {
	Status string `json:"status"`
}

func (ProviderStatusUpdated) Kind() Kind { return KindProviderStatusUpdated }

// Notification - уведомление в формате, который определяет сервер
type Notification struct {
	Title   string          `json:"title,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func (Notification) Kind() Kind { return KindNotificationCreated }

func (m *Notification) UnmarshalJSON(data []byte) error {
	var wire struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	// конверт произвольный: title/message берем, если они есть
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
	}
	m.Title = wire.Title
	m.Message = wire.Message
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m Notification) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	return json.Marshal(struct {
		Title   string `json:"title,omitempty"`
		Message string `json:"message,omitempty"`
	}{m.Title, m.Message})
}
