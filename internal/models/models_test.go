package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinate_UnmarshalStringAndNumber(t *testing.T) {
	var p Point
	require.NoError(t, json.Unmarshal([]byte(`{"latitude":"27.7172","longitude":85.324}`), &p))

	assert.InDelta(t, 27.7172, float64(p.Latitude), 1e-9)
	assert.InDelta(t, 85.324, float64(p.Longitude), 1e-9)
}

func TestCoordinate_MarshalsAsString(t *testing.T) {
	out, err := json.Marshal(Point{Latitude: 27.7172, Longitude: 85.324})
	require.NoError(t, err)
	assert.JSONEq(t, `{"latitude":"27.7172","longitude":"85.324"}`, string(out))
}

func TestCoordinate_Malformed(t *testing.T) {
	var c Coordinate
	err := json.Unmarshal([]byte(`"abc"`), &c)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestCoordinate_RejectsNonFinite(t *testing.T) {
	for _, raw := range []string{`"NaN"`, `"Inf"`, `"-Infinity"`, `"+Inf"`} {
		var c Coordinate
		err := json.Unmarshal([]byte(raw), &c)
		assert.ErrorIs(t, err, ErrMalformedPayload, raw)
	}
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(27.7172, 85.324))
	assert.NoError(t, ValidateCoordinates(-90, 180))
	assert.ErrorIs(t, ValidateCoordinates(123.5, 10), ErrMalformedPayload)
	assert.ErrorIs(t, ValidateCoordinates(10, 400), ErrMalformedPayload)
	assert.ErrorIs(t, ValidateCoordinates(math.NaN(), 10), ErrMalformedPayload)
	assert.ErrorIs(t, ValidateCoordinates(10, math.Inf(1)), ErrMalformedPayload)
	assert.ErrorIs(t, Point{Latitude: 91}.Validate(), ErrMalformedPayload)
}

func TestStatus_Lifecycle(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusArrived.IsTerminal())
	assert.Less(t, StatusAssigned.Rank(), StatusEnRoute.Rank())
	assert.Equal(t, -1, Status("lost").Rank())
	assert.False(t, Status("lost").Valid())
}

func TestBoundsOf(t *testing.T) {
	_, ok := BoundsOf(nil)
	assert.False(t, ok)

	b, ok := BoundsOf([]LatLng{{27.7172, 85.324}, {27.72, 85.33}})
	require.True(t, ok)
	assert.Equal(t, LatLng{27.7172, 85.324}, b.SouthWest)
	assert.Equal(t, LatLng{27.72, 85.33}, b.NorthEast)
}

func TestServerRejectedError_Is(t *testing.T) {
	var err error = &ServerRejectedError{StatusCode: 503}
	assert.ErrorIs(t, err, ErrServerRejected)
	assert.Contains(t, err.Error(), "503")
}
