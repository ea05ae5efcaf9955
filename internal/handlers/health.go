package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/alterra/pkg/response"
)

// SessionCounter reports how many verification sessions are held.
type SessionCounter interface {
	Count() int
}

// Health returns a simple status payload useful for readiness checks.
func Health(sessions SessionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{"status": "ok"}
		if sessions != nil {
			payload["active_sessions"] = sessions.Count()
		}
		response.Success(c, http.StatusOK, payload)
	}
}
