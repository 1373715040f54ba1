package api

import (
	"github.com/omnipos/catalog-sync/internal/models"
)

// ErrorResponse represents an API error
// @Description An error returned by the API
// @swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// @example integration not found: 123
	Error string `json:"error" example:"integration not found: 123"`
}

// SaveIntegrationRequest is the body for creating or updating an integration
// @Description Integration create/update payload
// @swagger:model SaveIntegrationRequest
type SaveIntegrationRequest struct {
	// ID of the integration; generated when empty
	ID string `json:"id"`
	// Display name
	// @example Main Street Store
	Name string `json:"name" binding:"required" example:"Main Street Store"`
	// Upstream source
	// @example square
	Source string `json:"source" binding:"required" example:"square"`
	// Upstream access token
	AccessToken string `json:"access_token"`
	// Upstream environment
	// @example production
	Environment string `json:"environment" example:"production"`
	// Whether imports may run; defaults to true
	Enabled *bool `json:"enabled"`
}

// Import request modes.
const (
	ImportModeStart  = "START"
	ImportModeResume = "RESUME"
)

// StartImportRequest is the optional body for starting an import
// @Description Import start/resume parameters
// @swagger:model StartImportRequest
type StartImportRequest struct {
	// START begins a new run; RESUME re-enqueues an in-flight one
	// @example START
	Mode string `json:"mode" example:"START"`
	// Run to resume; required when mode is RESUME
	RunID string `json:"run_id"`
}

// WatchdogCheckRequest is the body for a manual watchdog sweep
// @Description Watchdog sweep parameters
// @swagger:model WatchdogCheckRequest
type WatchdogCheckRequest struct {
	// Minutes without progress before a RUNNING run counts as stalled;
	// the configured default applies when zero
	// @example 15
	ThresholdMinutes int `json:"threshold_minutes" example:"15"`
}

// WatchdogCheckResponse reports the runs a sweep resolved
// @Description Watchdog sweep result
// @swagger:model WatchdogCheckResponse
type WatchdogCheckResponse struct {
	// Number of stalled runs marked FAILED
	// @example 1
	ResolvedCount int `json:"resolved_count" example:"1"`
	// The resolved runs
	Resolved []*models.ImportRun `json:"resolved"`
}

// ProductListResponse is a page of products
// @Description Paginated product list
// @swagger:model ProductListResponse
type ProductListResponse struct {
	Products []*models.Product `json:"products"`
	// Total matching products
	// @example 1200
	Total int64 `json:"total" example:"1200"`
	// Page size used
	// @example 50
	Limit int `json:"limit" example:"50"`
	// Offset used
	// @example 0
	Offset int `json:"offset" example:"0"`
}
