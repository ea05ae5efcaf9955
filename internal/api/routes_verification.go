package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/alterra/internal/handlers"
	"github.com/charlesng35/alterra/internal/services"
	"github.com/charlesng35/alterra/internal/verification"
)

func registerVerificationRoutes(r *gin.Engine, machine *verification.Machine, auditor services.Auditor, requireSecret gin.HandlerFunc) error {
	h, err := handlers.NewVerificationHandler(machine, machine.Registry(), auditor)
	if err != nil {
		return err
	}

	r.GET("/start", h.Start)
	r.POST("/step1", requireSecret, h.Step1)
	r.POST("/step2", requireSecret, h.Step2)

	return nil
}
