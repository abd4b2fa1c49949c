package route

import (
	"sort"
	"sync"

	"github.com/shenikar/emergency_response_client/internal/geo"
	"github.com/shenikar/emergency_response_client/internal/models"
)

// MapView - поверхность, на которой рисуется маршрут
type MapView interface {
	FitBounds(b models.Bounds)
	DrawPath(waypoints []models.LatLng)
	ClearPath()
	MoveMarker(party models.Role, pos models.LatLng)
}

// Marker - позиция одной из сторон
type Marker struct {
	Party    models.Role   `json:"party"`
	Position models.LatLng `json:"position"`
}

// View - то, что сейчас показано пользователю
type View struct {
	HasPath         bool            `json:"hasPath"`
	DistanceMeters  float64         `json:"distanceMeters,omitempty"`
	DurationSeconds float64         `json:"durationSeconds,omitempty"`
	DistanceText    string          `json:"distanceText,omitempty"`
	DurationText    string          `json:"durationText,omitempty"`
	Waypoints       []models.LatLng `json:"waypoints"`
	Bounds          *models.Bounds  `json:"bounds,omitempty"`
	Markers         []Marker        `json:"markers"`
}

// Presenter держит текущий путь и маркеры сторон
type Presenter struct {
	view          MapView
	minMoveMeters float64

	mu      sync.Mutex
	path    *models.RoutePath
	markers map[models.Role]models.LatLng
	bounds  *models.Bounds
}

func NewPresenter(view MapView, minMoveMeters float64) *Presenter {
	return &Presenter{
		view:          view,
		minMoveMeters: minMoveMeters,
		markers:       make(map[models.Role]models.LatLng),
	}
}

// SetPath заменяет путь целиком и вписывает карту. Без пути карта
// вписывается по позициям сторон.
func (p *Presenter) SetPath(path *models.RoutePath) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if path.Usable() {
		cp := *path
		cp.Waypoints = append([]models.LatLng(nil), path.Waypoints...)
		p.path = &cp
		p.view.DrawPath(cp.Waypoints)
	} else {
		p.path = nil
		p.view.ClearPath()
	}
	p.fitLocked()
}

// UpdatePosition двигает маркер стороны, если смещение заметное.
// Путь при этом не пересчитывается.
func (p *Presenter) UpdatePosition(party models.Role, pos models.LatLng) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.markers[party]; ok && geo.Distance(prev, pos) < p.minMoveMeters {
		return false
	}
	p.markers[party] = pos
	p.view.MoveMarker(party, pos)
	if p.path == nil {
		p.fitLocked()
	}
	return true
}

// Reset убирает путь и маркеры
func (p *Presenter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = nil
	p.markers = make(map[models.Role]models.LatLng)
	p.bounds = nil
	p.view.ClearPath()
}

func (p *Presenter) fitLocked() {
	var points []models.LatLng
	if p.path.Usable() {
		points = p.path.Waypoints
	} else {
		for _, party := range []models.Role{models.RoleRequester, models.RoleProvider} {
			if pos, ok := p.markers[party]; ok {
				points = append(points, pos)
			}
		}
	}
	b, ok := models.BoundsOf(points)
	if !ok {
		return
	}
	p.bounds = &b
	p.view.FitBounds(b)
}

// Snapshot возвращает текущее состояние показа
func (p *Presenter) Snapshot() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		Waypoints: []models.LatLng{},
		Markers:   make([]Marker, 0, len(p.markers)),
	}
	if p.path != nil {
		v.HasPath = true
		v.DistanceMeters = p.path.DistanceMeters
		v.DurationSeconds = p.path.DurationSeconds
		v.DistanceText = FormatDistance(p.path.DistanceMeters)
		v.DurationText = FormatDuration(p.path.DurationSeconds)
		v.Waypoints = append(v.Waypoints, p.path.Waypoints...)
	}
	if p.bounds != nil {
		b := *p.bounds
		v.Bounds = &b
	}
	for party, pos := range p.markers {
		v.Markers = append(v.Markers, Marker{Party: party, Position: pos})
	}
	sort.Slice(v.Markers, func(i, j int) bool { return v.Markers[i].Party < v.Markers[j].Party })
	return v
}
