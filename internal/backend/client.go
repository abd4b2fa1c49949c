// Package backend - REST клиент сервера координации
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/shenikar/emergency_response_client/internal/route"
	"github.com/sirupsen/logrus"
)

const maxErrorBody = 4 * 1024

// Client ходит в REST API с bearer токеном
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CreateResponseResult - ответ на создание реагирования
type CreateResponseResult struct {
	Incident  models.Incident
	Incidents []models.Incident
	// Path - nil, если сервер не прислал путь или прислал битый
	Path *models.RoutePath
}

type createResponseRequest struct {
	RequestID string `json:"requestId"`
}

type createResponseBody struct {
	EmergencyResponse json.RawMessage `json:"emergencyResponse"`
	OptimalPath       json.RawMessage `json:"optimalPath"`
}

// CreateResponse принимает заявку: POST /emergency-response
func (c *Client) CreateResponse(ctx context.Context, requestID string) (*CreateResponseResult, error) {
	var body createResponseBody
	if err := c.do(ctx, http.MethodPost, "/emergency-response", createResponseRequest{RequestID: requestID}, &body); err != nil {
		return nil, fmt.Errorf("backend: could not create response: %w", err)
	}

	result := &CreateResponseResult{}
	trimmed := bytes.TrimSpace(body.EmergencyResponse)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &result.Incidents); err != nil {
			return nil, fmt.Errorf("backend: could not create response: %w: %v", models.ErrMalformedPayload, err)
		}
	}
	incident, err := protocol.DecodeIncident(body.EmergencyResponse)
	if err != nil {
		return nil, fmt.Errorf("backend: could not create response: %w", err)
	}
	result.Incident = *incident
	if len(result.Incidents) == 0 {
		result.Incidents = []models.Incident{*incident}
	}

	path, err := route.ParseOptimalPath(body.OptimalPath)
	if err != nil {
		// битый путь - это "пути нет", а не ошибка операции
		c.logger.WithFields(logrus.Fields{
			"component":   "backend",
			"method":      "CreateResponse",
			"incident_id": incident.ID,
		}).WithError(err).Warn("Optimal path is malformed, continuing without path")
	}
	result.Path = path
	return result, nil
}

type updateStatusRequest struct {
	StatusUpdate      models.Status `json:"statusUpdate"`
	UpdateDescription string        `json:"updateDescription"`
}

// UpdateStatus подтверждает переход статуса: PUT /emergency-response/:id
func (c *Client) UpdateStatus(ctx context.Context, incidentID string, status models.Status, description string) error {
	req := updateStatusRequest{StatusUpdate: status, UpdateDescription: description}
	if err := c.do(ctx, http.MethodPut, "/emergency-response/"+url.PathEscape(incidentID), req, nil); err != nil {
		return fmt.Errorf("backend: could not update status: %w", err)
	}
	return nil
}

// GetResponse возвращает снимок инцидента: GET /emergency-response/:id
func (c *Client) GetResponse(ctx context.Context, incidentID string) (*models.Incident, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/emergency-response/"+url.PathEscape(incidentID), nil, &raw); err != nil {
		var rejected *models.ServerRejectedError
		if errors.As(err, &rejected) && rejected.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("backend: could not get response: %w", models.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("backend: could not get response: %w", err)
	}

	// снимок приходит либо как есть, либо обернутым в emergencyResponse
	var wrapped createResponseBody
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.EmergencyResponse) > 0 {
		raw = wrapped.EmergencyResponse
	}
	incident, err := protocol.DecodeIncident(raw)
	if err != nil {
		return nil, fmt.Errorf("backend: could not get response: %w", err)
	}
	return incident, nil
}

type providerStatusRequest struct {
	Status string `json:"status"`
}

// UpdateProviderStatus меняет доступность исполнителя: PATCH /service-provider/status
func (c *Client) UpdateProviderStatus(ctx context.Context, available bool) error {
	status := protocol.ProviderUnavailable
	if available {
		status = protocol.ProviderAvailable
	}
	if err := c.do(ctx, http.MethodPatch, "/service-provider/status", providerStatusRequest{Status: status}, nil); err != nil {
		return fmt.Errorf("backend: could not update provider status: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	log := c.logger.WithFields(logrus.Fields{
		"component": "backend",
		"http":      method + " " + path,
	})

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("REST request failed")
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(resp.Body)
		log.WithField("status_code", resp.StatusCode).Warn("REST request rejected")
		return &models.ServerRejectedError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	return nil
}

// errorMessage достает message/error из тела ответа с ошибкой
func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
