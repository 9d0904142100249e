package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mazda-bridge-backend/internal/coordinator"
	"mazda-bridge-backend/internal/mazda"
	"mazda-bridge-backend/internal/store"
)

// commandRequest is the optional JSON body of a command dispatch. Only
// send_poi uses it.
type commandRequest struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PostCommand handles POST /api/vehicles/:vehicle_id/commands/:kind.
func (h *Handler) PostCommand(c *gin.Context) {
	vehicleID := c.Param("vehicle_id")
	kind := mazda.CommandKind(c.Param("kind"))

	var poi *mazda.POI
	if kind == mazda.CommandSendPOI {
		var req commandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		poi = &mazda.POI{Name: req.Name, Latitude: req.Latitude, Longitude: req.Longitude}
	}

	record, err := h.coord.SendCommand(c.Request.Context(), vehicleID, kind, poi)
	if err != nil {
		h.abortWithCommandError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, record)
}

// GetCommandStatus handles GET /api/vehicles/:vehicle_id/commands/:visit_no.
// It queries upstream for the latest state and returns the updated record
// when one is tracked.
func (h *Handler) GetCommandStatus(c *gin.Context) {
	vehicleID := c.Param("vehicle_id")
	visitNo := c.Param("visit_no")

	state, err := h.coord.CheckCommandStatus(c.Request.Context(), vehicleID, visitNo)
	if err != nil {
		h.abortWithCommandError(c, err)
		return
	}

	record, err := h.store.GetCommandRecordByVisit(c.Request.Context(), vehicleID, visitNo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"vehicleId": vehicleID, "visitNo": visitNo, "state": state})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve command record"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListCommands handles GET /api/commands.
func (h *Handler) ListCommands(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 500"})
			return
		}
		limit = n
	}

	records, err := h.store.ListCommandRecords(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve command records"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// abortWithCommandError maps dispatch and status-check failures onto
// HTTP statuses.
func (h *Handler) abortWithCommandError(c *gin.Context, err error) {
	var (
		validationErr *mazda.ValidationError
		rejectedErr   *mazda.CommandRejectedError
		authErr       *mazda.AuthError
		unavailErr    *coordinator.APIUnavailableError
	)
	switch {
	case errors.Is(err, coordinator.ErrUnknownVehicle):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unknown vehicle"})
	case errors.As(err, &validationErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
	case errors.As(err, &rejectedErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &authErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Upstream authentication failed"})
	case errors.As(err, &unavailErr):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Upstream API unavailable"})
	default:
		h.log.Error().Err(err).Msg("command request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Command request failed"})
	}
}
