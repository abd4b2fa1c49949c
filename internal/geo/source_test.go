package geo

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	mu            sync.Mutex
	permissionErr error
	permissionN   int
	feed          chan models.Position
	current       models.Position
}

func (d *fakeDevice) RequestPermission(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.permissionN++
	return d.permissionErr
}

func (d *fakeDevice) CurrentPosition(ctx context.Context) (models.Position, error) {
	return d.current, nil
}

func (d *fakeDevice) Positions(ctx context.Context) (<-chan models.Position, error) {
	return d.feed, nil
}

func newTestSource(device Device) *Source {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewSource(device, logger)
}

type recorder struct {
	mu      sync.Mutex
	samples []models.Position
	got     chan struct{}
	ended   chan error
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 100), ended: make(chan error, 1)}
}

func (r *recorder) onSample(p models.Position) {
	r.mu.Lock()
	r.samples = append(r.samples, p)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) onError(err error) {
	r.ended <- err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleAt(sec int, lat float64) models.Position {
	return models.Position{Latitude: lat, Longitude: 85.324, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func TestDistance(t *testing.T) {
	d := Distance(models.LatLng{Latitude: 27.7172, Longitude: 85.324}, models.LatLng{Latitude: 27.7172, Longitude: 85.324})
	assert.Zero(t, d)

	// 0.001 градуса широты ~ 111 м
	d = Distance(models.LatLng{Latitude: 27.0, Longitude: 85.0}, models.LatLng{Latitude: 27.001, Longitude: 85.0})
	assert.InDelta(t, 111.2, d, 0.5)
}

func TestWatch_ThrottlesByInterval(t *testing.T) {
	device := &fakeDevice{feed: make(chan models.Position, 32)}
	src := newTestSource(device)
	rec := newRecorder()

	sub, err := src.Watch(context.Background(), WatchOptions{Interval: 5 * time.Second, MinDistanceMeters: 10}, rec.onSample, rec.onError)
	require.NoError(t, err)
	defer sub.Cancel()

	// каждую секунду смещение ~22 м
	for sec := 1; sec <= 20; sec++ {
		device.feed <- sampleAt(sec, 27.7172+float64(sec)*0.0002)
	}
	close(device.feed)

	select {
	case err := <-rec.ended:
		assert.ErrorIs(t, err, models.ErrPositionUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not finish")
	}

	elapsed := 20 * time.Second
	limit := int(math.Ceil(float64(elapsed) / float64(5*time.Second)))
	assert.Equal(t, 4, rec.count())
	assert.LessOrEqual(t, rec.count(), limit)
}

func TestWatch_ThrottlesByDisplacement(t *testing.T) {
	device := &fakeDevice{feed: make(chan models.Position, 32)}
	src := newTestSource(device)
	rec := newRecorder()

	sub, err := src.Watch(context.Background(), WatchOptions{Interval: 5 * time.Second, MinDistanceMeters: 10}, rec.onSample, rec.onError)
	require.NoError(t, err)
	defer sub.Cancel()

	// шаг ~1 м, интервал соблюден, но смещение ниже порога
	for i := 0; i < 5; i++ {
		device.feed <- sampleAt(i*6, 27.7172+float64(i)*0.00001)
	}
	close(device.feed)
	<-rec.ended

	assert.Equal(t, 1, rec.count())
}

func TestWatch_CancelStopsSamples(t *testing.T) {
	device := &fakeDevice{feed: make(chan models.Position, 32)}
	src := newTestSource(device)
	rec := newRecorder()

	sub, err := src.Watch(context.Background(), WatchOptions{Interval: time.Second, MinDistanceMeters: 1}, rec.onSample, rec.onError)
	require.NoError(t, err)

	device.feed <- sampleAt(0, 27.7172)
	<-rec.got

	sub.Cancel()
	sub.Cancel()
	<-sub.Done()

	device.feed <- sampleAt(10, 27.8)
	device.feed <- sampleAt(20, 27.9)

	assert.Equal(t, 1, rec.count())
	select {
	case <-rec.ended:
		t.Fatal("cancelled watch must not report an error")
	default:
	}
}

func TestPermission_ConfirmedOncePerProcess(t *testing.T) {
	device := &fakeDevice{feed: make(chan models.Position), current: sampleAt(0, 27.7)}
	src := newTestSource(device)

	_, err := src.CurrentPosition(context.Background())
	require.NoError(t, err)
	sub, err := src.Watch(context.Background(), WatchOptions{}, func(models.Position) {}, nil)
	require.NoError(t, err)
	sub.Cancel()

	assert.Equal(t, 1, device.permissionN)
}

func TestPermission_DenialFailsWithoutRetry(t *testing.T) {
	device := &fakeDevice{permissionErr: errors.New("user said no")}
	src := newTestSource(device)

	_, err := src.Watch(context.Background(), WatchOptions{}, func(models.Position) {}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.Equal(t, 1, device.permissionN)
}

func TestReplayDevice_ReplaysTrack(t *testing.T) {
	device, err := NewReplayDevice([]TrackPoint{
		{Latitude: 27.7172, Longitude: 85.324},
		{Latitude: 27.72, Longitude: 85.33, OffsetSeconds: 0.01},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := device.Positions(ctx)
	require.NoError(t, err)

	first := <-feed
	second := <-feed
	assert.Equal(t, 27.7172, first.Latitude)
	assert.Equal(t, 27.72, second.Latitude)

	current, err := device.CurrentPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 85.33, current.Longitude)
}

func TestReplayDevice_RejectsInvalidTrack(t *testing.T) {
	_, err := NewReplayDevice(nil)
	assert.Error(t, err)

	_, err = NewReplayDevice([]TrackPoint{{Latitude: 95, Longitude: 0}})
	assert.ErrorIs(t, err, models.ErrMalformedPayload)
}
