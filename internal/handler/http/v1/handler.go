package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shenikar/emergency_response_client/internal/config"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/service"
	"github.com/sirupsen/logrus"
)

// actionFailed - единое сообщение пользователю при сбое действия
const actionFailed = "action failed, please try again"

type Handler struct {
	incidentService service.IncidentService
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
}

func NewHandler(incidentService service.IncidentService, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		incidentService: incidentService,
		logger:          logger,
		validate:        validator.New(),
		cfg:             cfg,
	}
}

// incidentID достает и проверяет идентификатор из пути
func (h *Handler) incidentID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := h.validate.Var(id, "required,max=128,printascii"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return "", false
	}
	return id, true
}

// writeError переводит ошибку сервиса в HTTP ответ
func (h *Handler) writeError(c *gin.Context, log *logrus.Entry, err error) {
	switch {
	case errors.Is(err, models.ErrIncidentNotFound):
		log.WithError(err).Warn("Incident not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
	case errors.Is(err, models.ErrNoActiveIncident):
		log.WithError(err).Warn("No active incident")
		c.JSON(http.StatusNotFound, gin.H{"error": "no active incident"})
	case errors.Is(err, models.ErrIncidentTerminal):
		log.WithError(err).Warn("Incident is terminal")
		c.JSON(http.StatusConflict, gin.H{"error": "incident is already closed"})
	case errors.Is(err, models.ErrInvalidTransition):
		log.WithError(err).Warn("Invalid status transition")
		c.JSON(http.StatusConflict, gin.H{"error": "invalid status transition"})
	case errors.Is(err, models.ErrRoomNotReady):
		log.WithError(err).Warn("Incident is not ready")
		c.JSON(http.StatusConflict, gin.H{"error": "incident has no assigned provider yet"})
	case errors.Is(err, service.ErrRoleNotAllowed):
		log.WithError(err).Warn("Operation not allowed for role")
		c.JSON(http.StatusForbidden, gin.H{"error": "operation is not allowed for this role"})
	case errors.Is(err, models.ErrServerRejected), errors.Is(err, models.ErrNetwork):
		log.WithError(err).Error("Coordination server call failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": actionFailed})
	default:
		log.WithError(err).Error("Action failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": actionFailed})
	}
}

// @Summary Get session state
// @Description Get role, connection state, active incident and stream of this client. Requires API key.
// @Tags Session
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} SessionResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /session [get]
func (h *Handler) getSession(c *gin.Context) {
	snap := h.incidentService.Session(c.Request.Context())
	c.JSON(http.StatusOK, SnapshotToSessionResponse(snap))
}

// @Summary Accept an emergency request
// @Description Provider accepts a pending request; the client joins the incident room and starts streaming. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body AcceptRequestRequest true "Request to accept"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Not a provider"
// @Failure 502 {object} map[string]string "Coordination server rejected the action"
// @Router /incidents [post]
func (h *Handler) acceptRequest(c *gin.Context) {
	var input AcceptRequestRequest
	log := h.logger.WithField("method", "acceptRequest")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidentService.AcceptRequest(c.Request.Context(), input.RequestID)
	if err != nil {
		h.writeError(c, log.WithField("request_id", input.RequestID), err)
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(incident))
}

// @Summary Get incident by ID
// @Description Get the incident snapshot: live session state, cache or coordination server. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := h.incidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Update incident status
// @Description Request a status transition. The state changes only after the coordination server confirms it. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "Status transition"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "No active incident"
// @Failure 409 {object} map[string]string "Transition not allowed"
// @Failure 502 {object} map[string]string "Coordination server rejected the action"
// @Router /incidents/{id}/status [put]
func (h *Handler) updateStatus(c *gin.Context) {
	id, ok := h.incidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateStatus").WithField("id", id)

	var input UpdateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidentService.UpdateStatus(c.Request.Context(), id, models.Status(input.Status), input.Description)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Get route of the active incident
// @Description Get the optimal path, formatted distance and ETA, map bounds and party markers. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} RouteResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "No active incident"
// @Router /incidents/{id}/route [get]
func (h *Handler) getRoute(c *gin.Context) {
	id, ok := h.incidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getRoute").WithField("id", id)

	view, err := h.incidentService.Route(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ViewToRouteResponse(view))
}

// @Summary Get status history
// @Description Get the journal of applied status transitions. Empty when the journal is disabled. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {array} TransitionResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/history [get]
func (h *Handler) getHistory(c *gin.Context) {
	id, ok := h.incidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getHistory").WithField("id", id)

	transitions, err := h.incidentService.History(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToTransitionResponses(transitions))
}

// @Summary Set provider availability
// @Description Toggle provider availability. The value rolls back if the coordination server rejects it. Requires API key.
// @Tags Provider
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param availability body AvailabilityRequest true "Availability"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Not a provider"
// @Failure 502 {object} map[string]string "Coordination server rejected the action"
// @Router /provider/status [patch]
func (h *Handler) setAvailability(c *gin.Context) {
	var input AvailabilityRequest
	log := h.logger.WithField("method", "setAvailability")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.incidentService.SetAvailability(c.Request.Context(), *input.Available); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": *input.Available})
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
