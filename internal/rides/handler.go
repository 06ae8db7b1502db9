package rides

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/models"
)

// Handler exposes ride and rider HTTP endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new rides handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers ride routes on the router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	rides := router.Group("/rides")
	{
		rides.POST("", h.CreateRide)
		rides.GET("/:id", h.GetRide)
		rides.POST("/:id/cancel", h.CancelRide)
		rides.GET("/rider/:rider_id", h.ListByRider)
		rides.GET("/driver/:driver_id", h.ListByDriver)
	}

	riders := router.Group("/riders")
	{
		riders.POST("", h.CreateRider)
		riders.GET("/:id", h.GetRider)
	}
}

// CreateRide handles POST /rides
func (h *Handler) CreateRide(c *gin.Context) {
	var req models.RideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ride, err := h.service.CreateRideRequest(c.Request.Context(), &req)
	if err != nil {
		common.HandleServiceError(c, err, "failed to create ride")
		return
	}
	common.CreatedResponse(c, ride)
}

// GetRide handles GET /rides/:id
func (h *Handler) GetRide(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride id")
		return
	}

	ride, err := h.service.GetRide(c.Request.Context(), id)
	if err != nil {
		common.HandleServiceError(c, err, "failed to get ride")
		return
	}
	common.SuccessResponse(c, ride)
}

// CancelRide handles POST /rides/:id/cancel
func (h *Handler) CancelRide(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid ride id")
		return
	}

	if err := h.service.CancelRide(c.Request.Context(), id); err != nil {
		common.HandleServiceError(c, err, "failed to cancel ride")
		return
	}
	common.SuccessResponse(c, gin.H{"ride_id": id, "status": models.RideStatusCancelled})
}

// ListByRider handles GET /rides/rider/:rider_id
func (h *Handler) ListByRider(c *gin.Context) {
	riderID, err := strconv.ParseInt(c.Param("rider_id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid rider id")
		return
	}

	rides, err := h.service.ListRidesByRider(c.Request.Context(), riderID)
	if err != nil {
		common.HandleServiceError(c, err, "failed to list rides")
		return
	}
	common.SuccessResponse(c, rides)
}

// ListByDriver handles GET /rides/driver/:driver_id
func (h *Handler) ListByDriver(c *gin.Context) {
	driverID, err := strconv.ParseInt(c.Param("driver_id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid driver id")
		return
	}

	rides, err := h.service.ListRidesByDriver(c.Request.Context(), driverID)
	if err != nil {
		common.HandleServiceError(c, err, "failed to list rides")
		return
	}
	common.SuccessResponse(c, rides)
}

// CreateRider handles POST /riders
func (h *Handler) CreateRider(c *gin.Context) {
	var req models.RiderCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rider, err := h.service.CreateRider(c.Request.Context(), &req)
	if err != nil {
		common.HandleServiceError(c, err, "failed to create rider")
		return
	}
	common.CreatedResponse(c, rider)
}

// GetRider handles GET /riders/:id
func (h *Handler) GetRider(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid rider id")
		return
	}

	rider, err := h.service.GetRider(c.Request.Context(), id)
	if err != nil {
		common.HandleServiceError(c, err, "failed to get rider")
		return
	}
	common.SuccessResponse(c, rider)
}
