// Package route разбирает оптимальный путь сервера и готовит его к показу:
// текст расстояния и времени, линия пути, маркеры сторон, вписывание карты.
package route

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shenikar/emergency_response_client/internal/models"
)

// pathWire - элемент optimalPath. latlngs приходят в порядке [lng, lat].
type pathWire struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Latlngs  [][]float64 `json:"latlngs"`
}

// ParseOptimalPath принимает массив путей, одиночный объект или то же
// самое, закодированное строкой JSON. Пустое значение - пути нет (nil, nil).
func ParseOptimalPath(raw json.RawMessage) (*models.RoutePath, error) {
	return parse(raw, true)
}

func parse(raw []byte, allowBlob bool) (*models.RoutePath, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var wire pathWire
	switch raw[0] {
	case '"':
		if !allowBlob {
			return nil, fmt.Errorf("%w: optimal path is double-encoded", models.ErrMalformedPayload)
		}
		var blob string
		if err := json.Unmarshal(raw, &blob); err != nil {
			return nil, fmt.Errorf("%w: optimal path: %v", models.ErrMalformedPayload, err)
		}
		return parse([]byte(blob), false)
	case '[':
		var list []pathWire
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: optimal path: %v", models.ErrMalformedPayload, err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		wire = list[0]
	case '{':
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("%w: optimal path: %v", models.ErrMalformedPayload, err)
		}
	default:
		return nil, fmt.Errorf("%w: optimal path has unexpected shape", models.ErrMalformedPayload)
	}

	path := &models.RoutePath{
		DistanceMeters:  wire.Distance,
		DurationSeconds: wire.Duration,
		Waypoints:       make([]models.LatLng, 0, len(wire.Latlngs)),
	}
	for i, pair := range wire.Latlngs {
		if len(pair) < 2 {
			return nil, fmt.Errorf("%w: waypoint %d has %d coordinates", models.ErrMalformedPayload, i, len(pair))
		}
		lng, lat := pair[0], pair[1]
		if err := models.ValidateCoordinates(lat, lng); err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		path.Waypoints = append(path.Waypoints, models.LatLng{Latitude: lat, Longitude: lng})
	}

	// путь без точек нельзя ни нарисовать, ни вписать в карту
	if !path.Usable() {
		return nil, nil
	}
	return path, nil
}
