package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omnipos/catalog-sync/internal/db"
	apperrors "github.com/omnipos/catalog-sync/internal/errors"
	"github.com/omnipos/catalog-sync/internal/importer"
	"github.com/omnipos/catalog-sync/internal/models"
)

type Handler struct {
	imports  importer.ImportService
	watchdog *importer.Watchdog
	store    db.Store
	logger   *logrus.Logger
}

func NewHandler(imports importer.ImportService, watchdog *importer.Watchdog, store db.Store, logger *logrus.Logger) *Handler {
	return &Handler{
		imports:  imports,
		watchdog: watchdog,
		store:    store,
		logger:   logger,
	}
}

// StartImport godoc
// @Summary Start a catalog import
// @Description Starts a new import run for an integration, or re-enqueues an in-flight one when mode is RESUME. Only one run per integration may be active at a time.
// @Tags imports
// @Accept json
// @Produce json
// @Param id path string true "Integration ID"
// @Param request body StartImportRequest false "Import mode"
// @Success 202 {object} models.ImportRun
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /integrations/{id}/imports [post]
func (h *Handler) StartImport(c *gin.Context) {
	integrationID := c.Param("id")

	var req StartImportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var run *models.ImportRun
	var err error
	switch req.Mode {
	case "", ImportModeStart:
		run, err = h.imports.StartImport(c.Request.Context(), integrationID)
	case ImportModeResume:
		if req.RunID == "" {
			respondWithError(c, http.StatusBadRequest, "run_id is required for RESUME")
			return
		}
		run, err = h.imports.ResumeImport(c.Request.Context(), req.RunID)
	default:
		respondWithError(c, http.StatusBadRequest, "mode must be START or RESUME")
		return
	}
	if err != nil {
		if apperrors.IsRunInProgress(err) {
			respondWithError(c, http.StatusConflict, err.Error())
			return
		}
		if apperrors.IsNotFound(err) {
			respondWithError(c, http.StatusNotFound, err.Error())
			return
		}
		if apperrors.IsInvalidInput(err) {
			respondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to start import")
		respondWithError(c, http.StatusInternalServerError, "Failed to start import")
		return
	}

	c.JSON(http.StatusAccepted, run)
}

// GetImport godoc
// @Summary Get an import run
// @Description Returns the current state of an import run, including progress counters and errors
// @Tags imports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.ImportRun
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /imports/{id} [get]
func (h *Handler) GetImport(c *gin.Context) {
	run, err := h.imports.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apperrors.IsNotFound(err) {
			respondWithError(c, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to get import run")
		respondWithError(c, http.StatusInternalServerError, "Failed to get import run")
		return
	}

	c.JSON(http.StatusOK, run)
}

// ListImports godoc
// @Summary List import runs
// @Description Lists import runs, most recent first, optionally filtered by integration
// @Tags imports
// @Produce json
// @Param integration_id query string false "Integration ID"
// @Param limit query int false "Number of runs to return" default(50)
// @Param offset query int false "Number of runs to skip" default(0)
// @Success 200 {array} models.ImportRun
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /imports [get]
func (h *Handler) ListImports(c *gin.Context) {
	limit, err := getIntQueryParam(c, "limit", 50)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
		return
	}
	offset, err := getIntQueryParam(c, "offset", 0)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid offset parameter")
		return
	}

	runs, err := h.imports.ListRuns(c.Request.Context(), c.Query("integration_id"), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list import runs")
		respondWithError(c, http.StatusInternalServerError, "Failed to list import runs")
		return
	}

	c.JSON(http.StatusOK, runs)
}

// AbortImport godoc
// @Summary Abort an import run
// @Description Requests a cooperative abort. The run stops at its next batch boundary.
// @Tags imports
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /imports/{id}/abort [post]
func (h *Handler) AbortImport(c *gin.Context) {
	runID := c.Param("id")

	if err := h.imports.AbortImport(c.Request.Context(), runID); err != nil {
		if apperrors.IsNotFound(err) {
			respondWithError(c, http.StatusNotFound, err.Error())
			return
		}
		if apperrors.IsRunNotClaimable(err) {
			respondWithError(c, http.StatusConflict, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to request abort")
		respondWithError(c, http.StatusInternalServerError, "Failed to request abort")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "abort requested", "run_id": runID})
}

// ResumeImport godoc
// @Summary Resume an import run
// @Description Re-enqueues a job for a non-terminal run whose continuation message was lost
// @Tags imports
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} models.ImportRun
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /imports/{id}/resume [post]
func (h *Handler) ResumeImport(c *gin.Context) {
	run, err := h.imports.ResumeImport(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apperrors.IsNotFound(err) {
			respondWithError(c, http.StatusNotFound, err.Error())
			return
		}
		if apperrors.IsInvalidInput(err) {
			respondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to resume import")
		respondWithError(c, http.StatusInternalServerError, "Failed to resume import")
		return
	}

	c.JSON(http.StatusAccepted, run)
}

// CheckStalledRuns godoc
// @Summary Run a watchdog sweep
// @Description Finds RUNNING runs with no recent progress and marks them FAILED
// @Tags watchdog
// @Accept json
// @Produce json
// @Param request body WatchdogCheckRequest false "Sweep parameters"
// @Success 200 {object} WatchdogCheckResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /watchdog/check [post]
func (h *Handler) CheckStalledRuns(c *gin.Context) {
	var req WatchdogCheckRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	threshold := h.watchdog.StallThreshold()
	if req.ThresholdMinutes > 0 {
		threshold = time.Duration(req.ThresholdMinutes) * time.Minute
	}

	resolved, err := h.watchdog.CheckOnce(c.Request.Context(), threshold)
	if err != nil {
		h.logger.WithError(err).Error("Watchdog sweep failed")
		respondWithError(c, http.StatusInternalServerError, "Watchdog sweep failed")
		return
	}

	c.JSON(http.StatusOK, WatchdogCheckResponse{
		ResolvedCount: len(resolved),
		Resolved:      resolved,
	})
}

// ListIntegrations godoc
// @Summary List integrations
// @Tags integrations
// @Produce json
// @Success 200 {array} models.Integration
// @Failure 500 {object} ErrorResponse
// @Router /integrations [get]
func (h *Handler) ListIntegrations(c *gin.Context) {
	integrations, err := h.store.ListIntegrations(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list integrations")
		respondWithError(c, http.StatusInternalServerError, "Failed to list integrations")
		return
	}

	c.JSON(http.StatusOK, integrations)
}

// GetIntegration godoc
// @Summary Get an integration
// @Tags integrations
// @Produce json
// @Param id path string true "Integration ID"
// @Success 200 {object} models.Integration
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /integrations/{id} [get]
func (h *Handler) GetIntegration(c *gin.Context) {
	integration, err := h.store.GetIntegration(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apperrors.IsNotFound(err) {
			respondWithError(c, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to get integration")
		respondWithError(c, http.StatusInternalServerError, "Failed to get integration")
		return
	}

	c.JSON(http.StatusOK, integration)
}

// SaveIntegration godoc
// @Summary Create or update an integration
// @Tags integrations
// @Accept json
// @Produce json
// @Param request body SaveIntegrationRequest true "Integration"
// @Success 200 {object} models.Integration
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /integrations [post]
func (h *Handler) SaveIntegration(c *gin.Context) {
	var req SaveIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Source == "" {
		respondWithError(c, http.StatusBadRequest, "name and source are required")
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	integration := &models.Integration{
		ID:          id,
		Name:        req.Name,
		Source:      req.Source,
		AccessToken: req.AccessToken,
		Environment: req.Environment,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if err := h.store.SaveIntegration(c.Request.Context(), integration); err != nil {
		h.logger.WithError(err).Error("Failed to save integration")
		respondWithError(c, http.StatusInternalServerError, "Failed to save integration")
		return
	}

	c.JSON(http.StatusOK, integration)
}

// DeleteIntegration godoc
// @Summary Delete an integration
// @Tags integrations
// @Produce json
// @Param id path string true "Integration ID"
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /integrations/{id} [delete]
func (h *Handler) DeleteIntegration(c *gin.Context) {
	if err := h.store.DeleteIntegration(c.Request.Context(), c.Param("id")); err != nil {
		if apperrors.IsNotFound(err) {
			respondWithError(c, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to delete integration")
		respondWithError(c, http.StatusInternalServerError, "Failed to delete integration")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListProducts godoc
// @Summary List imported products
// @Tags products
// @Produce json
// @Param integration_id query string false "Integration ID"
// @Param limit query int false "Number of products to return" default(50)
// @Param offset query int false "Number of products to skip" default(0)
// @Success 200 {object} ProductListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /products [get]
func (h *Handler) ListProducts(c *gin.Context) {
	limit, err := getIntQueryParam(c, "limit", 50)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
		return
	}
	offset, err := getIntQueryParam(c, "offset", 0)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid offset parameter")
		return
	}

	products, total, err := h.store.ListProducts(c.Request.Context(), c.Query("integration_id"), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list products")
		respondWithError(c, http.StatusInternalServerError, "Failed to list products")
		return
	}

	c.JSON(http.StatusOK, ProductListResponse{
		Products: products,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func respondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{Error: message})
}

func getIntQueryParam(c *gin.Context, param string, defaultValue int) (int, error) {
	value := c.Query(param)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
