package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/alterra/internal/app"
	"github.com/charlesng35/alterra/internal/middleware"
	"github.com/charlesng35/alterra/internal/services"
	"github.com/charlesng35/alterra/internal/verification"
	"github.com/charlesng35/alterra/web"
)

// NewRouter builds the Gin engine, wires middleware and registers the callback
// gateway. audit may be nil when the audit store is disabled.
func NewRouter(cfg *app.Config, machine *verification.Machine, audit *services.AuditService) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if machine == nil {
		return nil, fmt.Errorf("verification machine must be provided")
	}

	templates, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	r := gin.New()
	r.SetHTMLTemplate(templates)

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	r.NoRoute(middleware.NotFoundHandler)

	registerHealthRoutes(r, machine.Registry())

	requireSecret := middleware.CallbackSecret(cfg.Verification.Secret)

	var auditor services.Auditor
	if audit != nil {
		auditor = audit
	}
	if err := registerVerificationRoutes(r, machine, auditor, requireSecret); err != nil {
		return nil, err
	}

	if audit != nil {
		if err := registerAuditRoutes(r, audit, requireSecret); err != nil {
			return nil, err
		}
	}

	return r, nil
}
