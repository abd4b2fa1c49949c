package v1

import (
	"time"
)

// AcceptRequestRequest DTO для принятия заявки исполнителем
// @Description DTO для принятия заявки исполнителем
type AcceptRequestRequest struct {
	RequestID string `json:"requestId" validate:"required,max=128"`
}

// UpdateStatusRequest DTO для перехода статуса
// @Description DTO для перехода статуса
type UpdateStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=en_route arrived completed rejected"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// AvailabilityRequest DTO для переключения доступности исполнителя
// @Description DTO для переключения доступности исполнителя
type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// PointResponse - точка в градусах
type PointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID                  string         `json:"id"`
	RequesterID         string         `json:"requesterId"`
	ProviderID          string         `json:"providerId"`
	OriginLocation      *PointResponse `json:"originLocation,omitempty"`
	DestinationLocation *PointResponse `json:"destinationLocation,omitempty"`
	Status              string         `json:"status"`
	StatusDescription   string         `json:"statusDescription,omitempty"`
	Terminal            bool           `json:"terminal"`
	UpdatedAt           *time.Time     `json:"updatedAt,omitempty"`
}

// MarkerResponse - маркер стороны на карте
type MarkerResponse struct {
	Party     string  `json:"party"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundsResponse - область карты
type BoundsResponse struct {
	SouthWest PointResponse `json:"southWest"`
	NorthEast PointResponse `json:"northEast"`
}

// RouteResponse DTO маршрута с расстоянием и временем в пути
// @Description DTO маршрута с расстоянием и временем в пути
type RouteResponse struct {
	HasPath         bool             `json:"hasPath"`
	DistanceMeters  float64          `json:"distanceMeters"`
	DurationSeconds float64          `json:"durationSeconds"`
	Distance        string           `json:"distance,omitempty"`
	Duration        string           `json:"duration,omitempty"`
	Waypoints       []PointResponse  `json:"waypoints"`
	Bounds          *BoundsResponse  `json:"bounds,omitempty"`
	Markers         []MarkerResponse `json:"markers"`
}

// TransitionResponse DTO записи журнала переходов
// @Description DTO записи журнала переходов
type TransitionResponse struct {
	ID          int64     `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Description string    `json:"description,omitempty"`
	Origin      string    `json:"origin"`
	At          time.Time `json:"at"`
}

// SessionResponse DTO состояния сессии клиента
// @Description DTO состояния сессии клиента
type SessionResponse struct {
	Role             string            `json:"role"`
	UserID           string            `json:"userId"`
	Connection       string            `json:"connection"`
	Engaged          bool              `json:"engaged"`
	Streaming        bool              `json:"streaming"`
	StreamIncidentID string            `json:"streamIncidentId,omitempty"`
	Available        *bool             `json:"available,omitempty"`
	Incident         *IncidentResponse `json:"incident,omitempty"`
}
