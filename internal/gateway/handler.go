package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/openride/dispatch/pkg/common"
	"github.com/openride/dispatch/pkg/driverindex"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler exposes the websocket endpoints and the REST query surface
type Handler struct {
	service *Service
	hub     *Hub
}

// NewHandler creates a new gateway handler
func NewHandler(service *Service, hub *Hub) *Handler {
	return &Handler{service: service, hub: hub}
}

// RegisterRoutes registers gateway routes on the router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	ws := router.Group("/ws")
	{
		ws.GET("/rider/:id", h.serveWS(KindRider))
		ws.GET("/driver/:id", h.serveWS(KindDriver))
		ws.GET("/ride/:id", h.serveWS(KindRide))
		ws.GET("/nearby-drivers", h.serveBrowseWS)
	}

	drivers := router.Group("/drivers")
	{
		drivers.GET("/nearby", h.NearbyDrivers)
		drivers.GET("/:id/location", h.DriverLocation)
	}

	router.GET("/healthz", h.Health)
}

func (h *Handler) serveWS(kind SessionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid id")
			return
		}
		h.upgrade(c, kind, id)
	}
}

func (h *Handler) serveBrowseWS(c *gin.Context) {
	h.upgrade(c, KindBrowse, 0)
}

func (h *Handler) upgrade(c *gin.Context, kind SessionKind, id int64) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := NewSession(kind, id, conn, h.hub)
	h.service.SessionOpened(session)

	go session.WritePump()
	go session.ReadPump()
}

// NearbyDrivers handles GET /drivers/nearby?lat=&lon=&radius=
func (h *Handler) NearbyDrivers(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid lat")
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid lon")
		return
	}

	radius := driverindex.DefaultRadiusKm
	if raw := c.Query("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid radius")
			return
		}
	}

	drivers := h.service.NearbyDrivers(lat, lon, radius)
	common.SuccessResponse(c, gin.H{"drivers": drivers, "count": len(drivers)})
}

// DriverLocation handles GET /drivers/:id/location
func (h *Handler) DriverLocation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid driver id")
		return
	}

	entry, err := h.service.DriverLocation(c.Request.Context(), id)
	if err != nil {
		common.HandleServiceError(c, err, "failed to get driver location")
		return
	}
	common.SuccessResponse(c, entry)
}

// Health handles GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"sessions":     h.hub.SessionCount(),
		"live_drivers": h.service.Index().Len(),
	})
}
