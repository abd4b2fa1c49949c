package route

import (
	"sync"

	"github.com/shenikar/emergency_response_client/internal/models"
)

// MemoryView - MapView без экрана: хранит последнее нарисованное
type MemoryView struct {
	mu        sync.Mutex
	bounds    *models.Bounds
	waypoints []models.LatLng
	markers   map[models.Role]models.LatLng
	fits      int
}

func NewMemoryView() *MemoryView {
	return &MemoryView{markers: make(map[models.Role]models.LatLng)}
}

func (v *MemoryView) FitBounds(b models.Bounds) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bounds = &b
	v.fits++
}

func (v *MemoryView) DrawPath(waypoints []models.LatLng) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.waypoints = append([]models.LatLng(nil), waypoints...)
}

func (v *MemoryView) ClearPath() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.waypoints = nil
}

func (v *MemoryView) MoveMarker(party models.Role, pos models.LatLng) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markers[party] = pos
}

// Bounds - последний прямоугольник, в который вписана карта
func (v *MemoryView) Bounds() (models.Bounds, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bounds == nil {
		return models.Bounds{}, false
	}
	return *v.bounds, true
}

func (v *MemoryView) Waypoints() []models.LatLng {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.LatLng(nil), v.waypoints...)
}

func (v *MemoryView) Marker(party models.Role) (models.LatLng, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.markers[party]
	return pos, ok
}

// Fits - сколько раз карта вписывалась
func (v *MemoryView) Fits() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fits
}
