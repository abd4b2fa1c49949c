package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shenikar/emergency_response_client/internal/backend"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/service/mocks"
	"github.com/shenikar/emergency_response_client/internal/session"
	"github.com/shenikar/emergency_response_client/internal/status"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testDeps struct {
	repo     *mocks.MockIncidentRepository
	backend  *mocks.MockBackend
	session  *mocks.MockSession
	listener status.Listener
}

// newTestIncidentService - вспомогательная функция для создания инстанса сервиса с моками.
func newTestIncidentService(t *testing.T) (*incidentService, *testDeps) {
	ctrl := gomock.NewController(t)
	deps := &testDeps{
		repo:    mocks.NewMockIncidentRepository(ctrl),
		backend: mocks.NewMockBackend(ctrl),
		session: mocks.NewMockSession(ctrl),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	deps.session.EXPECT().
		OnTransition(gomock.Any()).
		Do(func(fn status.Listener) { deps.listener = fn }).
		Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	service := NewIncidentService(ctx, deps.repo, deps.backend, deps.session, logger)
	return service.(*incidentService), deps
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for journal worker")
	}
}

func testIncident() *models.Incident {
	return &models.Incident{
		ID:          "inc-1",
		RequesterID: "req-1",
		ProviderID:  "prov-1",
		Status:      models.StatusAssigned,
	}
}

func TestGetIncident_FromSession(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	// Ожидания
	deps.session.EXPECT().Incident("inc-1").Return(testIncident(), true).Times(1)
	deps.repo.EXPECT().GetIncidentFromCache(gomock.Any(), gomock.Any()).Times(0)
	deps.backend.EXPECT().GetResponse(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incident, err := service.GetIncident(ctx, "inc-1")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, incident.Status)
}

func TestGetIncident_FromCache(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	cached := testIncident()

	// Ожидания
	deps.session.EXPECT().Incident("inc-1").Return(nil, false)
	deps.repo.EXPECT().GetIncidentFromCache(ctx, "inc-1").Return(cached, nil).Times(1)
	deps.backend.EXPECT().GetResponse(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incident, err := service.GetIncident(ctx, "inc-1")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, cached, incident)
}

func TestGetIncident_FromServerFillsCache(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	fromServer := testIncident()

	// Ожидания
	// 1. Промах кеша
	deps.session.EXPECT().Incident("inc-1").Return(nil, false)
	deps.repo.EXPECT().GetIncidentFromCache(ctx, "inc-1").Return(nil, nil)
	// 2. Запрос к серверу и запись в кеш
	deps.backend.EXPECT().GetResponse(ctx, "inc-1").Return(fromServer, nil).Times(1)
	deps.repo.EXPECT().SetIncidentCache(ctx, fromServer).Return(nil).Times(1)

	// Действие
	incident, err := service.GetIncident(ctx, "inc-1")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, fromServer, incident)
}

func TestGetIncident_CacheErrorFallsBackToServer(t *testing.T) {
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	deps.session.EXPECT().Incident("inc-1").Return(nil, false)
	deps.repo.EXPECT().GetIncidentFromCache(ctx, "inc-1").Return(nil, errors.New("redis down"))
	deps.backend.EXPECT().GetResponse(ctx, "inc-1").Return(testIncident(), nil)
	deps.repo.EXPECT().SetIncidentCache(ctx, gomock.Any()).Return(errors.New("redis down"))

	incident, err := service.GetIncident(ctx, "inc-1")

	require.NoError(t, err)
	assert.Equal(t, "inc-1", incident.ID)
}

func TestGetIncident_NotFound(t *testing.T) {
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	deps.session.EXPECT().Incident("missing").Return(nil, false)
	deps.repo.EXPECT().GetIncidentFromCache(ctx, "missing").Return(nil, nil)
	deps.backend.EXPECT().GetResponse(ctx, "missing").Return(nil, models.ErrIncidentNotFound)
	deps.repo.EXPECT().SetIncidentCache(gomock.Any(), gomock.Any()).Times(0)

	incident, err := service.GetIncident(ctx, "missing")

	assert.Nil(t, incident)
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestAcceptRequest_EngagesWithPath(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	created := *testIncident()
	created.Status = models.StatusPending
	path := &models.RoutePath{
		Waypoints:      []models.LatLng{{Latitude: 27.7, Longitude: 85.3}},
		DistanceMeters: 1200,
	}

	// Ожидания
	deps.session.EXPECT().Role().Return(models.RoleProvider)
	deps.backend.EXPECT().
		CreateResponse(ctx, "req-42").
		Return(&backend.CreateResponseResult{Incident: created, Path: path}, nil).
		Times(1)
	deps.session.EXPECT().
		Engage(ctx, gomock.Any(), path).
		DoAndReturn(func(_ context.Context, inc *models.Incident, _ *models.RoutePath) error {
			assert.Equal(t, models.StatusAssigned, inc.Status)
			return nil
		}).
		Times(1)
	deps.repo.EXPECT().SetIncidentCache(ctx, gomock.Any()).Return(nil).Times(1)

	// Действие
	incident, err := service.AcceptRequest(ctx, "req-42")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, "inc-1", incident.ID)
	assert.Equal(t, models.StatusAssigned, incident.Status)
}

func TestAcceptRequest_RequesterNotAllowed(t *testing.T) {
	service, deps := newTestIncidentService(t)

	deps.session.EXPECT().Role().Return(models.RoleRequester)
	deps.backend.EXPECT().CreateResponse(gomock.Any(), gomock.Any()).Times(0)

	_, err := service.AcceptRequest(context.Background(), "req-42")

	assert.ErrorIs(t, err, ErrRoleNotAllowed)
}

func TestAcceptRequest_ServerRejects(t *testing.T) {
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	deps.session.EXPECT().Role().Return(models.RoleProvider)
	deps.backend.EXPECT().
		CreateResponse(ctx, "req-42").
		Return(nil, &models.ServerRejectedError{StatusCode: 409, Message: "already taken"})
	deps.session.EXPECT().Engage(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	deps.repo.EXPECT().SetIncidentCache(gomock.Any(), gomock.Any()).Times(0)

	_, err := service.AcceptRequest(ctx, "req-42")

	assert.ErrorIs(t, err, models.ErrServerRejected)
}

func TestUpdateStatus_Success(t *testing.T) {
	// Подготовка
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	updated := testIncident()
	updated.Status = models.StatusEnRoute

	// Ожидания
	deps.session.EXPECT().
		RequestTransition(ctx, "inc-1", models.StatusEnRoute, "leaving now").
		Return(&models.StatusTransition{IncidentID: "inc-1", From: models.StatusAssigned, To: models.StatusEnRoute}, nil).
		Times(1)
	deps.session.EXPECT().Incident("inc-1").Return(updated, true)

	// Действие
	incident, err := service.UpdateStatus(ctx, "inc-1", models.StatusEnRoute, "leaving now")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnRoute, incident.Status)
}

func TestUpdateStatus_RejectedByServerKeepsState(t *testing.T) {
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	deps.session.EXPECT().
		RequestTransition(ctx, "inc-1", models.StatusArrived, "").
		Return(nil, &models.ServerRejectedError{StatusCode: 500})
	deps.session.EXPECT().Incident(gomock.Any()).Times(0)

	incident, err := service.UpdateStatus(ctx, "inc-1", models.StatusArrived, "")

	assert.Nil(t, incident)
	assert.ErrorIs(t, err, models.ErrServerRejected)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	deps.session.EXPECT().
		RequestTransition(ctx, "inc-1", models.StatusEnRoute, "").
		Return(nil, models.ErrIncidentTerminal)

	_, err := service.UpdateStatus(ctx, "inc-1", models.StatusEnRoute, "")

	assert.ErrorIs(t, err, models.ErrIncidentTerminal)
}

func TestRecordTransition_JournalsAndInvalidatesCache(t *testing.T) {
	// Подготовка
	_, deps := newTestIncidentService(t)
	tr := models.StatusTransition{
		IncidentID: "inc-1",
		From:       models.StatusEnRoute,
		To:         models.StatusArrived,
		Origin:     models.OriginServer,
		At:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	// Ожидания
	deps.repo.EXPECT().
		SaveTransition(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got *models.StatusTransition) error {
			assert.Equal(t, models.StatusArrived, got.To)
			assert.Equal(t, models.OriginServer, got.Origin)
			return nil
		}).
		Times(1)
	done := make(chan struct{})
	deps.repo.EXPECT().
		InvalidateIncidentCache(gomock.Any(), "inc-1").
		DoAndReturn(func(context.Context, string) error {
			close(done)
			return nil
		}).
		Times(1)

	// Действие
	require.NotNil(t, deps.listener)
	deps.listener(tr)

	// Проверки
	waitClosed(t, done)
}

func TestRecordTransition_JournalFailureStillInvalidates(t *testing.T) {
	_, deps := newTestIncidentService(t)

	done := make(chan struct{})
	deps.repo.EXPECT().SaveTransition(gomock.Any(), gomock.Any()).Return(errors.New("pg down"))
	deps.repo.EXPECT().
		InvalidateIncidentCache(gomock.Any(), "inc-1").
		DoAndReturn(func(context.Context, string) error {
			close(done)
			return nil
		}).
		Times(1)

	deps.listener(models.StatusTransition{IncidentID: "inc-1", To: models.StatusCompleted})
	waitClosed(t, done)
}

func TestRecordTransition_SlowJournalDoesNotBlockListener(t *testing.T) {
	_, deps := newTestIncidentService(t)

	unblock := make(chan struct{})
	saved := make(chan string, 2)
	deps.repo.EXPECT().
		SaveTransition(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tr *models.StatusTransition) error {
			<-unblock
			saved <- string(tr.To)
			return nil
		}).
		Times(2)
	invalidated := make(chan struct{}, 2)
	deps.repo.EXPECT().
		InvalidateIncidentCache(gomock.Any(), "inc-1").
		DoAndReturn(func(context.Context, string) error {
			invalidated <- struct{}{}
			return nil
		}).
		Times(2)

	// журнал завис, а доставка следующих переходов не ждет его
	start := time.Now()
	deps.listener(models.StatusTransition{IncidentID: "inc-1", To: models.StatusEnRoute})
	deps.listener(models.StatusTransition{IncidentID: "inc-1", To: models.StatusArrived})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(unblock)
	for _, want := range []string{"en_route", "arrived"} {
		select {
		case got := <-saved:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("transition was not journaled")
		}
		select {
		case <-invalidated:
		case <-time.After(2 * time.Second):
			t.Fatal("cache was not invalidated")
		}
	}
}

func TestSetAvailability(t *testing.T) {
	service, deps := newTestIncidentService(t)
	ctx := context.Background()

	deps.session.EXPECT().Role().Return(models.RoleProvider).Times(2)
	deps.session.EXPECT().SetAvailability(ctx, true).Return(nil)
	deps.session.EXPECT().SetAvailability(ctx, false).Return(&models.ServerRejectedError{StatusCode: 503})

	require.NoError(t, service.SetAvailability(ctx, true))
	assert.ErrorIs(t, service.SetAvailability(ctx, false), models.ErrServerRejected)
}

func TestSetAvailability_RequesterNotAllowed(t *testing.T) {
	service, deps := newTestIncidentService(t)

	deps.session.EXPECT().Role().Return(models.RoleRequester)
	deps.session.EXPECT().SetAvailability(gomock.Any(), gomock.Any()).Times(0)

	assert.ErrorIs(t, service.SetAvailability(context.Background(), true), ErrRoleNotAllowed)
}

func TestRoute(t *testing.T) {
	service, deps := newTestIncidentService(t)
	view := route.View{HasPath: true, DistanceText: "5.00 km", DurationText: "10 minutes"}

	deps.session.EXPECT().Route("inc-1").Return(view, nil)
	deps.session.EXPECT().Route("other").Return(route.View{}, models.ErrNoActiveIncident)

	got, err := service.Route(context.Background(), "inc-1")
	require.NoError(t, err)
	assert.Equal(t, "5.00 km", got.DistanceText)

	_, err = service.Route(context.Background(), "other")
	assert.ErrorIs(t, err, models.ErrNoActiveIncident)
}

func TestHistory(t *testing.T) {
	service, deps := newTestIncidentService(t)
	ctx := context.Background()
	rows := []*models.StatusTransition{
		{ID: 1, IncidentID: "inc-1", From: models.StatusAssigned, To: models.StatusEnRoute},
		{ID: 2, IncidentID: "inc-1", From: models.StatusEnRoute, To: models.StatusArrived},
	}

	deps.repo.EXPECT().ListTransitions(ctx, "inc-1").Return(rows, nil)

	history, err := service.History(ctx, "inc-1")

	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, models.StatusArrived, history[1].To)
}

func TestSession(t *testing.T) {
	service, deps := newTestIncidentService(t)

	deps.session.EXPECT().Snapshot().Return(session.Snapshot{Role: models.RoleProvider, Connection: "connected"})

	snap := service.Session(context.Background())

	assert.Equal(t, models.RoleProvider, snap.Role)
	assert.Equal(t, "connected", snap.Connection)
}
