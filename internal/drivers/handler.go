package drivers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/models"
)

// Handler exposes driver HTTP endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new drivers handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers driver routes on the router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	drivers := router.Group("/drivers")
	{
		drivers.POST("", h.CreateDriver)
		drivers.GET("/:id", h.GetDriver)
		drivers.POST("/availability", h.UpdateAvailability)
		drivers.POST("/location", h.UpdateLocation)
	}

	rides := router.Group("/rides")
	{
		rides.POST("/accept", h.AcceptRide)
		rides.POST("/start", h.StartRide)
		rides.POST("/complete", h.CompleteRide)
	}
}

// CreateDriver handles POST /drivers
func (h *Handler) CreateDriver(c *gin.Context) {
	var req models.DriverCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	driver, err := h.service.CreateDriver(c.Request.Context(), &req)
	if err != nil {
		common.HandleServiceError(c, err, "failed to create driver")
		return
	}
	common.CreatedResponse(c, driver)
}

// GetDriver handles GET /drivers/:id
func (h *Handler) GetDriver(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid driver id")
		return
	}

	driver, err := h.service.GetDriver(c.Request.Context(), id)
	if err != nil {
		common.HandleServiceError(c, err, "failed to get driver")
		return
	}
	common.SuccessResponse(c, driver)
}

// UpdateAvailability handles POST /drivers/availability
func (h *Handler) UpdateAvailability(c *gin.Context) {
	var req models.AvailabilityUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.UpdateAvailability(c.Request.Context(), &req); err != nil {
		common.HandleServiceError(c, err, "failed to update availability")
		return
	}
	common.SuccessResponse(c, gin.H{"driver_id": req.DriverID, "is_online": *req.IsOnline})
}

// UpdateLocation handles POST /drivers/location
func (h *Handler) UpdateLocation(c *gin.Context) {
	var req models.LocationUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	published, err := h.service.UpdateLocation(c.Request.Context(), &req)
	if err != nil {
		common.HandleServiceError(c, err, "failed to update location")
		return
	}
	common.SuccessResponse(c, gin.H{"driver_id": req.DriverID, "published": published})
}

// AcceptRide handles POST /rides/accept
func (h *Handler) AcceptRide(c *gin.Context) {
	h.rideAction(c, h.service.AcceptRide)
}

// StartRide handles POST /rides/start
func (h *Handler) StartRide(c *gin.Context) {
	h.rideAction(c, h.service.StartRide)
}

// CompleteRide handles POST /rides/complete
func (h *Handler) CompleteRide(c *gin.Context) {
	h.rideAction(c, h.service.CompleteRide)
}

func (h *Handler) rideAction(c *gin.Context, action func(ctx context.Context, req *models.RideAction) error) {
	var req models.RideAction
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := action(c.Request.Context(), &req); err != nil {
		common.HandleServiceError(c, err, "failed to apply ride action")
		return
	}
	common.SuccessResponse(c, gin.H{"ride_id": req.RideID, "driver_id": req.DriverID})
}
