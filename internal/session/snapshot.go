package session

import (
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/streaming"
)

// Snapshot - состояние сессии для API управления
type Snapshot struct {
	Role             models.Role      `json:"role"`
	UserID           string           `json:"userId"`
	Connection       string           `json:"connection"`
	Incident         *models.Incident `json:"incident,omitempty"`
	Engaged          bool             `json:"engaged"`
	Streaming        bool             `json:"streaming"`
	StreamIncidentID string           `json:"streamIncidentId,omitempty"`
	Available        *bool            `json:"available,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Role:       s.role,
		UserID:     s.userID,
		Connection: s.ch.State().String(),
	}

	s.mu.Lock()
	if s.incident != nil {
		cp := *s.incident
		snap.Incident = &cp
	}
	snap.Engaged = s.engaged
	s.mu.Unlock()

	if id, _, ok := s.streaming.Active(); ok {
		snap.Streaming = true
		snap.StreamIncidentID = id
	}
	if s.availability != nil {
		available := s.availability.Available()
		snap.Available = &available
	}
	return snap
}

// SampleSender рисует собственную позицию на карте и передает
// отсчет в канал
type SampleSender struct {
	next      streaming.Sender
	presenter *route.Presenter
}

func NewSampleSender(next streaming.Sender, presenter *route.Presenter) *SampleSender {
	return &SampleSender{next: next, presenter: presenter}
}

func (s *SampleSender) Send(msg protocol.Message) {
	if report, ok := msg.(protocol.LocationReport); ok {
		s.presenter.UpdatePosition(report.Role, report.Location.LatLng())
	}
	s.next.Send(msg)
}
