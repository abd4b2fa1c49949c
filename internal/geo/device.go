package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shenikar/emergency_response_client/internal/models"
)

// FixedDevice всегда сообщает одну и ту же позицию с заданным периодом
type FixedDevice struct {
	Position models.Position
	Period   time.Duration
	Now      func() time.Time
}

func (d *FixedDevice) RequestPermission(ctx context.Context) error {
	return nil
}

func (d *FixedDevice) CurrentPosition(ctx context.Context) (models.Position, error) {
	pos := d.Position
	pos.Timestamp = d.now()
	return pos, nil
}

func (d *FixedDevice) Positions(ctx context.Context) (<-chan models.Position, error) {
	period := d.Period
	if period <= 0 {
		period = time.Second
	}
	out := make(chan models.Position, 1)
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			pos, _ := d.CurrentPosition(ctx)
			select {
			case <-ctx.Done():
				return
			case out <- pos:
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

func (d *FixedDevice) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// TrackPoint - точка записанного трека
type TrackPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// OffsetSeconds - смещение от начала воспроизведения
	OffsetSeconds float64 `json:"offsetSeconds"`
}

// ReplayDevice воспроизводит записанный трек вместо GPS телефона
type ReplayDevice struct {
	points []TrackPoint

	mu   sync.Mutex
	last *models.Position
}

// LoadTrack читает трек из JSON файла
func LoadTrack(path string) (*ReplayDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track file: %w", err)
	}
	var points []TrackPoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("failed to parse track file: %w", err)
	}
	return NewReplayDevice(points)
}

func NewReplayDevice(points []TrackPoint) (*ReplayDevice, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("track has no points")
	}
	for _, p := range points {
		if err := models.ValidateCoordinates(p.Latitude, p.Longitude); err != nil {
			return nil, err
		}
	}
	return &ReplayDevice{points: points}, nil
}

func (d *ReplayDevice) RequestPermission(ctx context.Context) error {
	return nil
}

func (d *ReplayDevice) CurrentPosition(ctx context.Context) (models.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != nil {
		return *d.last, nil
	}
	first := d.points[0]
	return models.Position{Latitude: first.Latitude, Longitude: first.Longitude, Timestamp: time.Now()}, nil
}

// Positions проигрывает трек один раз; после последней точки поток
// остается открытым до отмены ctx.
func (d *ReplayDevice) Positions(ctx context.Context) (<-chan models.Position, error) {
	out := make(chan models.Position)
	go func() {
		start := time.Now()
		for _, p := range d.points {
			wait := time.Until(start.Add(time.Duration(p.OffsetSeconds * float64(time.Second))))
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			pos := models.Position{Latitude: p.Latitude, Longitude: p.Longitude, Timestamp: time.Now()}
			d.mu.Lock()
			d.last = &pos
			d.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case out <- pos:
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}
