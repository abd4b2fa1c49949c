package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coordinate - градусы. По проводу координаты ходят строками,
// поэтому при разборе принимаем и строку, и число.
type Coordinate float64

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(c), 'f', -1, 64))
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		return fmt.Errorf("%w: empty coordinate", ErrMalformedPayload)
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%w: coordinate %q: %v", ErrMalformedPayload, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: coordinate %q is not finite", ErrMalformedPayload, raw)
	}
	*c = Coordinate(v)
	return nil
}

// Point - географическая точка в формате протокола
type Point struct {
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`
}

// LatLng - точка для отображения и расчетов
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate проверяет диапазоны точки
func (p Point) Validate() error {
	return ValidateCoordinates(float64(p.Latitude), float64(p.Longitude))
}

func (p Point) LatLng() LatLng {
	return LatLng{Latitude: float64(p.Latitude), Longitude: float64(p.Longitude)}
}

// Position - отсчет местоположения устройства. Не сохраняется,
// каждый новый отсчет вытесняет предыдущий.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p Position) LatLng() LatLng {
	return LatLng{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Point конвертирует отсчет в формат протокола
func (p Position) Point() Point {
	return Point{Latitude: Coordinate(p.Latitude), Longitude: Coordinate(p.Longitude)}
}

// ValidateCoordinates проверяет диапазоны широты и долготы
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("%w: coordinates must be finite", ErrMalformedPayload)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrMalformedPayload)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrMalformedPayload)
	}
	return nil
}
