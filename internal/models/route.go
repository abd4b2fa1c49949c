package models

import "math"

// RoutePath - маршрут, рассчитанный сервером. Порядок точек значим,
// первая точка - начало пути.
type RoutePath struct {
	Waypoints       []LatLng `json:"waypoints"`
	DistanceMeters  float64  `json:"distanceMeters"`
	DurationSeconds float64  `json:"durationSeconds"`
}

// Usable - путь можно рисовать и вписывать в карту только при наличии точек
func (p *RoutePath) Usable() bool {
	return p != nil && len(p.Waypoints) > 0
}

// Bounds - прямоугольник, покрывающий набор точек
type Bounds struct {
	SouthWest LatLng `json:"southWest"`
	NorthEast LatLng `json:"northEast"`
}

// BoundsOf возвращает границы точек; ok=false для пустого набора
func BoundsOf(points []LatLng) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := Bounds{
		SouthWest: LatLng{Latitude: math.Inf(1), Longitude: math.Inf(1)},
		NorthEast: LatLng{Latitude: math.Inf(-1), Longitude: math.Inf(-1)},
	}
	for _, p := range points {
		b.SouthWest.Latitude = math.Min(b.SouthWest.Latitude, p.Latitude)
		b.SouthWest.Longitude = math.Min(b.SouthWest.Longitude, p.Longitude)
		b.NorthEast.Latitude = math.Max(b.NorthEast.Latitude, p.Latitude)
		b.NorthEast.Longitude = math.Max(b.NorthEast.Longitude, p.Longitude)
	}
	return b, true
}
