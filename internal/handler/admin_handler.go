package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"incident-console/internal/models"
	"incident-console/internal/service"
	"incident-console/internal/util"
)

// Provisioner is the slice of the provisioning service the HTTP layer
// needs. Kept narrow so handler tests run against a fake.
type Provisioner interface {
	Provision(ctx context.Context, req *service.ProvisionRequest) (string, error)
	ResetPassword(ctx context.Context, operatorID, newPassword, requestedBy string) error
	SetStatus(ctx context.Context, operatorID, status string) error
	ReplaceCameras(ctx context.Context, operatorID string, cameraIDs []string) error
	GetOperator(ctx context.Context, operatorID string) (*models.Operator, error)
}

// AuditReader queries the operator activity log.
type AuditReader interface {
	ByOperator(ctx context.Context, operatorID string, limit int) ([]models.AuditRecord, error)
}

// AdminHandler handles HTTP requests for operator administration
type AdminHandler struct {
	provisioner Provisioner
	auditReader AuditReader
	logger      *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(provisioner Provisioner, auditReader AuditReader, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		provisioner: provisioner,
		auditReader: auditReader,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all admin routes
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Route("/operators", func(r chi.Router) {
			r.Post("/", h.ProvisionOperator)
			r.Get("/{operatorID}", h.GetOperator)
			r.Post("/{operatorID}/reset-password", h.ResetPassword)
			r.Patch("/{operatorID}/status", h.UpdateStatus)
			r.Put("/{operatorID}/cameras", h.ReplaceCameras)
		})
		r.Get("/operator-logs/{operatorID}", h.GetOperatorLogs)
	})
}

// ProvisionOperator handles operator creation
// @Summary Provision a new operator
// @Description Create an operator credential, role claim and profile
// @Tags admin
// @Accept json
// @Produce json
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 429 {object} Response
// @Failure 500 {object} Response
// @Router /admin/operators [post]
func (h *AdminHandler) ProvisionOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if info := TokenInfoFromContext(ctx); info != nil {
		req.RequestedBy = info.UserID
	}
	req.SourceIP = r.RemoteAddr

	operatorID, err := h.provisioner.Provision(ctx, &req)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to provision operator")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(
		map[string]string{"operator_id": operatorID}, "Operator provisioned successfully"))
	h.logger.Info("Operator provisioned via HTTP",
		util.String("operator_id", operatorID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ProvisionOperator"),
	)
}

// GetOperator handles operator retrieval
// @Summary Get operator by ID
// @Tags admin
// @Produce json
// @Param operatorID path string true "Operator ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /admin/operators/{operatorID} [get]
func (h *AdminHandler) GetOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	operatorID := chi.URLParam(r, "operatorID")
	operator, err := h.provisioner.GetOperator(ctx, operatorID)
	if err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to get operator")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(operator, "Operator retrieved successfully"))
}

// ResetPassword handles operator password resets
// @Summary Reset operator password
// @Tags admin
// @Accept json
// @Produce json
// @Param operatorID path string true "Operator ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /admin/operators/{operatorID}/reset-password [post]
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	operatorID := chi.URLParam(r, "operatorID")

	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	requestedBy := ""
	if info := TokenInfoFromContext(ctx); info != nil {
		requestedBy = info.UserID
	}

	if err := h.provisioner.ResetPassword(ctx, operatorID, req.NewPassword, requestedBy); err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to reset password")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password reset successfully"))
	h.logger.Info("Operator password reset via HTTP",
		util.String("operator_id", operatorID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ResetPassword"),
	)
}

// UpdateStatus handles operator status changes
// @Summary Update operator status
// @Tags admin
// @Accept json
// @Produce json
// @Param operatorID path string true "Operator ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /admin/operators/{operatorID}/status [patch]
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	operatorID := chi.URLParam(r, "operatorID")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.provisioner.SetStatus(ctx, operatorID, req.Status); err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to update operator status")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Operator status updated successfully"))
	h.logger.Info("Operator status updated via HTTP",
		util.String("operator_id", operatorID),
		util.String("status", req.Status),
		util.String("method", "UpdateStatus"),
	)
}

// ReplaceCameras handles camera assignment changes
// @Summary Replace operator camera assignments
// @Tags admin
// @Accept json
// @Produce json
// @Param operatorID path string true "Operator ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /admin/operators/{operatorID}/cameras [put]
func (h *AdminHandler) ReplaceCameras(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	operatorID := chi.URLParam(r, "operatorID")

	var req struct {
		CameraIDs []string `json:"camera_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.provisioner.ReplaceCameras(ctx, operatorID, req.CameraIDs); err != nil {
		statusCode := h.getStatusCode(err)
		h.respondWithError(w, statusCode, err, "Failed to replace cameras")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Camera assignments updated successfully"))
	h.logger.Info("Operator cameras replaced via HTTP",
		util.String("operator_id", operatorID),
		util.Int("camera_count", len(req.CameraIDs)),
		util.String("method", "ReplaceCameras"),
	)
}

// GetOperatorLogs handles operator activity queries
// @Summary Get operator activity logs
// @Tags admin
// @Produce json
// @Param operatorID path string true "Operator ID"
// @Param limit query int false "Page size (default: 100, max: 1000)"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /admin/operator-logs/{operatorID} [get]
func (h *AdminHandler) GetOperatorLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	operatorID := chi.URLParam(r, "operatorID")

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > 1000 {
			h.respondWithError(w, http.StatusBadRequest, errors.New("invalid limit"), "Limit must be between 1 and 1000")
			return
		}
		limit = parsedLimit
	}

	records, err := h.auditReader.ByOperator(ctx, operatorID, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to get operator logs")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(records, "Operator logs retrieved successfully"))
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *AdminHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AdminHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrOperatorNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
