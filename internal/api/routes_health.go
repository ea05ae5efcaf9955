package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/alterra/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, sessions handlers.SessionCounter) {
	r.GET("/health", handlers.Health(sessions))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
