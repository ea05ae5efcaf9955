package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/alterra/internal/handlers"
	"github.com/charlesng35/alterra/internal/services"
)

func registerAuditRoutes(r *gin.Engine, audit *services.AuditService, requireSecret gin.HandlerFunc) error {
	auditHandler, err := handlers.NewAuditHandler(audit)
	if err != nil {
		return err
	}

	r.GET("/audit", requireSecret, auditHandler.List)
	return nil
}
