package http

import (
	"net/http"
	"time"

	"voicebridge/internal/core/ports"
	"voicebridge/internal/infrastructure/monitoring"
	"voicebridge/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsHandler exposes the HTTP surface next to the websocket endpoint:
// server stats, room listing, health and Prometheus metrics.
type StatsHandler struct {
	registry *signal.PeerRegistry
	rooms    ports.RoomService
	health   *monitoring.HealthChecker
	started  time.Time

	metricsEnabled bool
}

func NewStatsHandler(
	registry *signal.PeerRegistry,
	rooms ports.RoomService,
	health *monitoring.HealthChecker,
	metricsEnabled bool,
) *StatsHandler {
	return &StatsHandler{
		registry:       registry,
		rooms:          rooms,
		health:         health,
		started:        time.Now(),
		metricsEnabled: metricsEnabled,
	}
}

func (h *StatsHandler) SetupRoutes(router *gin.Engine, ws *signal.WebSocketServer) {
	router.GET("/", h.GetStats)
	router.GET("/health", h.GetHealth)
	router.GET("/rooms", h.ListRooms)
	router.GET("/ws", gin.WrapF(ws.HandleWebSocket))

	if h.metricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	roomCount, err := h.rooms.RoomCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connectedPeers": h.registry.Count(),
		"activeRooms":    roomCount,
		"uptimeSeconds":  int64(time.Since(h.started).Seconds()),
	})
}

func (h *StatsHandler) GetHealth(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *StatsHandler) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
	})
}
