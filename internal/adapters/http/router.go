package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/halden/backstage/internal/adapters/signal"
	"github.com/halden/backstage/internal/app"
	"github.com/halden/backstage/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, manager *app.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"OPTIONS", "POST", "GET"},
	}))

	// Plain success body for anything that is not the realtime surface.
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "works")
	})

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, manager.RoomViews())
	})

	r.GET("/ws/room", func(c *gin.Context) {
		ctl.HandleRoom(ctx, c)
	})
	r.GET("/ws/lobby", func(c *gin.Context) {
		ctl.HandleLobby(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
