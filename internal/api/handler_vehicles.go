package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mazda-bridge-backend/internal/mazda"
	"mazda-bridge-backend/internal/model"
)

// vehicleResponse pairs the registry entry with snapshot freshness.
type vehicleResponse struct {
	model.Vehicle
	DisplayName     string     `json:"displayName"`
	StatusUpdatedAt *time.Time `json:"statusUpdatedAt"`
	HealthUpdatedAt *time.Time `json:"healthUpdatedAt"`
}

// GetVehicles handles GET /api/vehicles.
func (h *Handler) GetVehicles(c *gin.Context) {
	vehicles, err := h.store.ListVehicles(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicles"})
		return
	}

	response := make([]vehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		entry := vehicleResponse{
			Vehicle: v,
			DisplayName: mazda.Vehicle{
				Nickname:    v.Nickname,
				ModelYear:   v.ModelYear,
				CarlineName: v.CarlineName,
			}.DisplayName(),
		}
		if snap, ok := h.coord.StatusSnapshot(v.ID); ok {
			t := snap.FetchedAt
			entry.StatusUpdatedAt = &t
		}
		if snap, ok := h.coord.HealthSnapshot(v.ID); ok {
			t := snap.FetchedAt
			entry.HealthUpdatedAt = &t
		}
		response = append(response, entry)
	}
	c.JSON(http.StatusOK, response)
}

// GetVehicleStatus handles GET /api/vehicles/:vehicle_id/status.
func (h *Handler) GetVehicleStatus(c *gin.Context) {
	vehicleID := c.Param("vehicle_id")
	snap, ok := h.coord.StatusSnapshot(vehicleID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No status snapshot for this vehicle yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetVehicleHealth handles GET /api/vehicles/:vehicle_id/health.
func (h *Handler) GetVehicleHealth(c *gin.Context) {
	vehicleID := c.Param("vehicle_id")
	snap, ok := h.coord.HealthSnapshot(vehicleID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No health snapshot for this vehicle yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetVehicleEV handles GET /api/vehicles/:vehicle_id/ev.
func (h *Handler) GetVehicleEV(c *gin.Context) {
	vehicleID := c.Param("vehicle_id")
	snap, ok := h.coord.EVSnapshot(vehicleID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No EV snapshot for this vehicle yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PostRefresh handles POST /api/refresh, triggering an immediate status
// sweep. While a sweep is already running the request is rejected rather
// than queued.
func (h *Handler) PostRefresh(c *gin.Context) {
	if err := h.coord.TriggerStatusSweep(); err != nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "A refresh is already in progress"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh started"})
}
