package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/domain"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Service  *app.LiveService
	WS       *WSHandler
	Gatherer prometheus.Gatherer
	PProf    bool
	Logger   *zap.Logger
}

type roomResponse struct {
	domain.RoomView
	// Connections counts the websocket connections joined on this instance.
	Connections int `json:"connections"`
}

// NewRouter exposes health, metrics, the websocket endpoint and read-only room views.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := gin.New()
	e.Use(gin.Recovery(), requestLogger(logger.Named("http")))

	e.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Gatherer != nil {
		e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.PProf {
		pprof.Register(e, "/debug/pprof")
	}
	e.GET("/ws", gin.WrapF(cfg.WS.ServeWS))

	rooms := e.Group("/api/rooms/:roomId")
	rooms.GET("", func(c *gin.Context) {
		roomID := c.Param("roomId")
		view, err := cfg.Service.RoomView(c.Request.Context(), roomID, c.Query("participantId"))
		if errors.Is(err, domain.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, roomResponse{RoomView: view, Connections: cfg.WS.hub.RoomSize(roomID)})
	})
	rooms.GET("/leaderboard", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		lb, err := cfg.Service.Leaderboard(c.Request.Context(), c.Param("roomId"), limit)
		if err != nil {
			logger.Error("leaderboard read failed", zap.String("room", c.Param("roomId")), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "leaderboard unavailable"})
			return
		}
		c.JSON(http.StatusOK, lb)
	})
	return e
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
