package v1

import (
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/session"
)

func pointResponse(p models.LatLng) PointResponse {
	return PointResponse{Latitude: p.Latitude, Longitude: p.Longitude}
}

func optionalPoint(p *models.Point) *PointResponse {
	if p == nil {
		return nil
	}
	r := pointResponse(p.LatLng())
	return &r
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	if model == nil {
		return nil
	}
	resp := &IncidentResponse{
		ID:                  model.ID,
		RequesterID:         model.RequesterID,
		ProviderID:          model.ProviderID,
		OriginLocation:      optionalPoint(model.OriginLocation),
		DestinationLocation: optionalPoint(model.DestinationLocation),
		Status:              string(model.Status),
		StatusDescription:   model.StatusDescription,
		Terminal:            model.Status.IsTerminal(),
	}
	if !model.UpdatedAt.IsZero() {
		updated := model.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// ViewToRouteResponse преобразует состояние карты в DTO
func ViewToRouteResponse(view *route.View) *RouteResponse {
	resp := &RouteResponse{
		HasPath:         view.HasPath,
		DistanceMeters:  view.DistanceMeters,
		DurationSeconds: view.DurationSeconds,
		Distance:        view.DistanceText,
		Duration:        view.DurationText,
		Waypoints:       make([]PointResponse, len(view.Waypoints)),
		Markers:         make([]MarkerResponse, len(view.Markers)),
	}
	for i, wp := range view.Waypoints {
		resp.Waypoints[i] = pointResponse(wp)
	}
	for i, m := range view.Markers {
		resp.Markers[i] = MarkerResponse{
			Party:     string(m.Party),
			Latitude:  m.Position.Latitude,
			Longitude: m.Position.Longitude,
		}
	}
	if view.Bounds != nil {
		resp.Bounds = &BoundsResponse{
			SouthWest: pointResponse(view.Bounds.SouthWest),
			NorthEast: pointResponse(view.Bounds.NorthEast),
		}
	}
	return resp
}

// ModelsToTransitionResponses преобразует журнал в слайс DTO
func ModelsToTransitionResponses(transitions []*models.StatusTransition) []*TransitionResponse {
	responses := make([]*TransitionResponse, len(transitions))
	for i, tr := range transitions {
		responses[i] = &TransitionResponse{
			ID:          tr.ID,
			From:        string(tr.From),
			To:          string(tr.To),
			Description: tr.Description,
			Origin:      string(tr.Origin),
			At:          tr.At,
		}
	}
	return responses
}

// SnapshotToSessionResponse преобразует состояние сессии в DTO
func SnapshotToSessionResponse(snap session.Snapshot) *SessionResponse {
	return &SessionResponse{
		Role:             string(snap.Role),
		UserID:           snap.UserID,
		Connection:       snap.Connection,
		Engaged:          snap.Engaged,
		Streaming:        snap.Streaming,
		StreamIncidentID: snap.StreamIncidentID,
		Available:        snap.Available,
		Incident:         ModelToIncidentResponse(snap.Incident),
	}
}
