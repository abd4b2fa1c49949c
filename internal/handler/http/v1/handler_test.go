package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/emergency_response_client/internal/config"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/shenikar/emergency_response_client/internal/service"
	"github.com/shenikar/emergency_response_client/internal/service/mocks"
	"github.com/shenikar/emergency_response_client/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var authHeader = map[string]string{"X-API-Key": "test-api-key"}

// newTestHandler создает новый экземпляр Handler с мокированным сервисом
func newTestHandler(t *testing.T) (*Handler, *mocks.MockIncidentService, *gin.Engine) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockIncidentService(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		APIKeys: []string{"test-api-key"},
	}

	handler := NewHandler(mockService, logger, cfg)

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return handler, mockService, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func testIncident(st models.Status) *models.Incident {
	return &models.Incident{
		ID:             "inc-1",
		RequesterID:    "req-1",
		ProviderID:     "prov-1",
		OriginLocation: &models.Point{Latitude: 27.7172, Longitude: 85.324},
		Status:         st,
	}
}

func TestHealthCheck_NoAuth(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/system/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuth_MissingKey(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().Session(gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/session", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "API key required")
}

func TestAuth_InvalidKey(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().Session(gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/session", nil, map[string]string{"X-API-Key": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_BearerKey(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().Session(gomock.Any()).Return(session.Snapshot{Role: models.RoleProvider})

	w := makeRequest(router, "GET", "/api/v1/session", nil, map[string]string{"Authorization": "Bearer test-api-key"})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetSession_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	available := true
	mockService.EXPECT().
		Session(gomock.Any()).
		Return(session.Snapshot{
			Role:             models.RoleProvider,
			UserID:           "prov-1",
			Connection:       "connected",
			Incident:         testIncident(models.StatusEnRoute),
			Engaged:          true,
			Streaming:        true,
			StreamIncidentID: "inc-1",
			Available:        &available,
		}).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/session", nil, authHeader)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "provider", resp.Role)
	assert.Equal(t, "connected", resp.Connection)
	assert.True(t, resp.Streaming)
	require.NotNil(t, resp.Incident)
	assert.Equal(t, "en_route", resp.Incident.Status)
	require.NotNil(t, resp.Available)
	assert.True(t, *resp.Available)
}

func TestAcceptRequest_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		AcceptRequest(gomock.Any(), "req-42").
		Return(testIncident(models.StatusAssigned), nil).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/incidents", jsonBody(t, AcceptRequestRequest{RequestID: "req-42"}), authHeader)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "inc-1", resp.ID)
	assert.Equal(t, "assigned", resp.Status)
	require.NotNil(t, resp.OriginLocation)
	assert.InDelta(t, 27.7172, resp.OriginLocation.Latitude, 1e-9)
}

func TestAcceptRequest_InvalidJSON(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().AcceptRequest(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/incidents", bytes.NewBufferString(`{"requestId": "x"`), authHeader)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestAcceptRequest_ValidationError(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().AcceptRequest(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/incidents", jsonBody(t, AcceptRequestRequest{}), authHeader)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Error:Field validation for 'RequestID' failed on the 'required' tag")
}

func TestAcceptRequest_RequesterForbidden(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		AcceptRequest(gomock.Any(), "req-42").
		Return(nil, fmt.Errorf("service: %w", service.ErrRoleNotAllowed))

	w := makeRequest(router, "POST", "/api/v1/incidents", jsonBody(t, AcceptRequestRequest{RequestID: "req-42"}), authHeader)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAcceptRequest_ServerRejectedShowsGenericMessage(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		AcceptRequest(gomock.Any(), "req-42").
		Return(nil, &models.ServerRejectedError{StatusCode: 500, Message: "stack trace here"})

	w := makeRequest(router, "POST", "/api/v1/incidents", jsonBody(t, AcceptRequestRequest{RequestID: "req-42"}), authHeader)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"action failed, please try again"}`, w.Body.String())
}

func TestGetIncident_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().GetIncident(gomock.Any(), "inc-1").Return(testIncident(models.StatusCompleted), nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/incidents/inc-1", nil, authHeader)

	require.Equal(t, http.StatusOK, w.Code)
	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.True(t, resp.Terminal)
}

func TestGetIncident_NotFound(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().GetIncident(gomock.Any(), "missing").Return(nil, fmt.Errorf("service: %w", models.ErrIncidentNotFound))

	w := makeRequest(router, "GET", "/api/v1/incidents/missing", nil, authHeader)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "incident not found")
}

func TestGetIncident_NetworkError(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().GetIncident(gomock.Any(), "inc-1").Return(nil, models.ErrNetwork)

	w := makeRequest(router, "GET", "/api/v1/incidents/inc-1", nil, authHeader)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "action failed, please try again")
}

func TestUpdateStatus_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		UpdateStatus(gomock.Any(), "inc-1", models.StatusArrived, "at the door").
		Return(testIncident(models.StatusArrived), nil).
		Times(1)

	body := jsonBody(t, UpdateStatusRequest{Status: "arrived", Description: "at the door"})
	w := makeRequest(router, "PUT", "/api/v1/incidents/inc-1/status", body, authHeader)

	require.Equal(t, http.StatusOK, w.Code)
	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "arrived", resp.Status)
}

func TestUpdateStatus_ValidationRejectsUnknownStatus(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	for _, st := range []string{"pending", "assigned", "lost", ""} {
		body := jsonBody(t, UpdateStatusRequest{Status: st})
		w := makeRequest(router, "PUT", "/api/v1/incidents/inc-1/status", body, authHeader)
		assert.Equal(t, http.StatusBadRequest, w.Code, st)
	}
}

func TestUpdateStatus_Conflicts(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		UpdateStatus(gomock.Any(), "inc-1", models.StatusEnRoute, "").
		Return(nil, fmt.Errorf("service: %w", models.ErrIncidentTerminal))
	mockService.EXPECT().
		UpdateStatus(gomock.Any(), "inc-1", models.StatusCompleted, "").
		Return(nil, fmt.Errorf("service: %w", models.ErrInvalidTransition))

	w := makeRequest(router, "PUT", "/api/v1/incidents/inc-1/status", jsonBody(t, UpdateStatusRequest{Status: "en_route"}), authHeader)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "incident is already closed")

	w = makeRequest(router, "PUT", "/api/v1/incidents/inc-1/status", jsonBody(t, UpdateStatusRequest{Status: "completed"}), authHeader)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "invalid status transition")
}

func TestUpdateStatus_NoActiveIncident(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		UpdateStatus(gomock.Any(), "other", models.StatusArrived, "").
		Return(nil, fmt.Errorf("service: %w", models.ErrNoActiveIncident))

	w := makeRequest(router, "PUT", "/api/v1/incidents/other/status", jsonBody(t, UpdateStatusRequest{Status: "arrived"}), authHeader)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no active incident")
}

func TestGetRoute_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	view := &route.View{
		HasPath:         true,
		DistanceMeters:  5000,
		DurationSeconds: 600,
		DistanceText:    "5.00 km",
		DurationText:    "10 minutes",
		Waypoints:       []models.LatLng{{Latitude: 27.70, Longitude: 85.32}, {Latitude: 27.72, Longitude: 85.33}},
		Bounds: &models.Bounds{
			SouthWest: models.LatLng{Latitude: 27.70, Longitude: 85.32},
			NorthEast: models.LatLng{Latitude: 27.72, Longitude: 85.33},
		},
		Markers: []route.Marker{{Party: models.RoleRequester, Position: models.LatLng{Latitude: 27.72, Longitude: 85.33}}},
	}
	mockService.EXPECT().Route(gomock.Any(), "inc-1").Return(view, nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/incidents/inc-1/route", nil, authHeader)

	require.Equal(t, http.StatusOK, w.Code)
	var resp RouteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "5.00 km", resp.Distance)
	assert.Equal(t, "10 minutes", resp.Duration)
	assert.Len(t, resp.Waypoints, 2)
	require.NotNil(t, resp.Bounds)
	assert.InDelta(t, 27.72, resp.Bounds.NorthEast.Latitude, 1e-9)
	require.Len(t, resp.Markers, 1)
	assert.Equal(t, "requester", resp.Markers[0].Party)
}

func TestGetHistory_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		History(gomock.Any(), "inc-1").
		Return([]*models.StatusTransition{
			{ID: 1, IncidentID: "inc-1", From: models.StatusAssigned, To: models.StatusEnRoute, Origin: models.OriginLocal},
			{ID: 2, IncidentID: "inc-1", From: models.StatusEnRoute, To: models.StatusRejected, Origin: models.OriginServer},
		}, nil)

	w := makeRequest(router, "GET", "/api/v1/incidents/inc-1/history", nil, authHeader)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []TransitionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "rejected", resp[1].To)
	assert.Equal(t, "server", resp[1].Origin)
}

func TestGetHistory_EmptyJournal(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().History(gomock.Any(), "inc-1").Return([]*models.StatusTransition{}, nil)

	w := makeRequest(router, "GET", "/api/v1/incidents/inc-1/history", nil, authHeader)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSetAvailability_Success(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().SetAvailability(gomock.Any(), false).Return(nil).Times(1)

	w := makeRequest(router, "PATCH", "/api/v1/provider/status", bytes.NewBufferString(`{"available": false}`), authHeader)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"available":false}`, w.Body.String())
}

func TestSetAvailability_MissingField(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().SetAvailability(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PATCH", "/api/v1/provider/status", bytes.NewBufferString(`{}`), authHeader)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetAvailability_RolledBack(t *testing.T) {
	_, mockService, router := newTestHandler(t)
	mockService.EXPECT().
		SetAvailability(gomock.Any(), true).
		Return(&models.ServerRejectedError{StatusCode: 503})

	w := makeRequest(router, "PATCH", "/api/v1/provider/status", bytes.NewBufferString(`{"available": true}`), authHeader)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "action failed, please try again")
}
