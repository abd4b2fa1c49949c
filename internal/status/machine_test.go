package status

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/status/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestMachine(t *testing.T, current models.Status) (*Machine, *mocks.MockUpdater) {
	ctrl := gomock.NewController(t)
	updaterMock := mocks.NewMockUpdater(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	m := NewMachine(&models.Incident{ID: "inc-1", Status: current}, updaterMock, logger)
	m.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return m, updaterMock
}

func TestMachine_ApplyForward(t *testing.T) {
	m, _ := newTestMachine(t, models.StatusAssigned)
	var seen []models.StatusTransition
	m.OnTransition(func(tr models.StatusTransition) { seen = append(seen, tr) })

	tr, err := m.Apply(models.StatusEnRoute, "on the way", models.OriginServer)

	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, models.StatusAssigned, tr.From)
	assert.Equal(t, models.StatusEnRoute, tr.To)
	assert.Equal(t, models.OriginServer, tr.Origin)
	assert.Equal(t, models.StatusEnRoute, m.Current())
	assert.Equal(t, "on the way", m.Description())
	assert.Len(t, seen, 1)
}

func TestMachine_ApplyDuplicateIsNoop(t *testing.T) {
	m, _ := newTestMachine(t, models.StatusEnRoute)
	calls := 0
	m.OnTransition(func(models.StatusTransition) { calls++ })

	tr, err := m.Apply(models.StatusEnRoute, "", models.OriginServer)

	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, 0, calls)
}

func TestMachine_ApplyBackwardsRejected(t *testing.T) {
	m, _ := newTestMachine(t, models.StatusArrived)

	_, err := m.Apply(models.StatusEnRoute, "", models.OriginServer)

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	assert.Equal(t, models.StatusArrived, m.Current())
}

func TestMachine_TerminalFromAnyState(t *testing.T) {
	for _, from := range []models.Status{models.StatusPending, models.StatusAssigned, models.StatusEnRoute, models.StatusArrived} {
		for _, to := range []models.Status{models.StatusCompleted, models.StatusRejected} {
			m, _ := newTestMachine(t, from)
			tr, err := m.Apply(to, "", models.OriginServer)
			require.NoError(t, err, "%s -> %s", from, to)
			require.NotNil(t, tr)
		}
	}
}

func TestMachine_NothingAfterTerminal(t *testing.T) {
	m, _ := newTestMachine(t, models.StatusRejected)

	_, err := m.Apply(models.StatusEnRoute, "", models.OriginServer)
	assert.True(t, errors.Is(err, models.ErrIncidentTerminal))

	_, err = m.Apply(models.StatusCompleted, "", models.OriginServer)
	assert.True(t, errors.Is(err, models.ErrIncidentTerminal))

	tr, err := m.Apply(models.StatusRejected, "", models.OriginServer)
	assert.NoError(t, err)
	assert.Nil(t, tr)
}

func TestMachine_ApplyUnknownStatus(t *testing.T) {
	m, _ := newTestMachine(t, models.StatusAssigned)

	_, err := m.Apply(models.Status("teleported"), "", models.OriginServer)

	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestMachine_RequestTransition_Confirmed(t *testing.T) {
	// Подготовка
	m, updaterMock := newTestMachine(t, models.StatusAssigned)
	ctx := context.Background()

	// Ожидания
	updaterMock.EXPECT().
		UpdateStatus(ctx, "inc-1", models.StatusEnRoute, "leaving now").
		Return(nil).
		Times(1)

	// Действие
	tr, err := m.RequestTransition(ctx, models.StatusEnRoute, "leaving now")

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, models.OriginLocal, tr.Origin)
	assert.Equal(t, models.StatusEnRoute, m.Current())
}

func TestMachine_RequestTransition_ServerRejects(t *testing.T) {
	// Подготовка
	m, updaterMock := newTestMachine(t, models.StatusAssigned)
	ctx := context.Background()
	calls := 0
	m.OnTransition(func(models.StatusTransition) { calls++ })

	// Ожидания
	updaterMock.EXPECT().
		UpdateStatus(ctx, "inc-1", models.StatusEnRoute, "").
		Return(&models.ServerRejectedError{StatusCode: 500}).
		Times(1)

	// Действие
	tr, err := m.RequestTransition(ctx, models.StatusEnRoute, "")

	// Проверки
	require.Error(t, err)
	assert.Nil(t, tr)
	assert.True(t, errors.Is(err, models.ErrServerRejected))
	assert.Equal(t, models.StatusAssigned, m.Current())
	assert.Equal(t, 0, calls)
}

func TestMachine_RequestTransition_InvalidSkipsServer(t *testing.T) {
	// Подготовка
	m, updaterMock := newTestMachine(t, models.StatusCompleted)

	// Ожидания
	updaterMock.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// Действие
	_, err := m.RequestTransition(context.Background(), models.StatusArrived, "")

	// Проверки
	assert.True(t, errors.Is(err, models.ErrIncidentTerminal))
}

func TestMachine_RequestTransition_EchoAlreadyApplied(t *testing.T) {
	m, updaterMock := newTestMachine(t, models.StatusAssigned)
	ctx := context.Background()

	updaterMock.EXPECT().
		UpdateStatus(ctx, "inc-1", models.StatusArrived, "").
		DoAndReturn(func(context.Context, string, models.Status, string) error {
			// сервер успел разослать переход до ответа REST
			_, err := m.Apply(models.StatusArrived, "", models.OriginServer)
			return err
		})

	tr, err := m.RequestTransition(ctx, models.StatusArrived, "")

	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, models.StatusArrived, m.Current())
}
