package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/charlesng35/alterra/pkg/errors"
	"github.com/charlesng35/alterra/pkg/metrics"
	"github.com/charlesng35/alterra/pkg/response"
)

// SecretHeader carries the shared secret on verification callbacks.
const SecretHeader = "X-Verif-Secret"

// CallbackSecret rejects requests whose secret header does not match. It runs
// before the handler so a bad secret never reaches the registry.
func CallbackSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		provided := []byte(c.GetHeader(SecretHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			metrics.StepReports.WithLabelValues(routeLabel(c), "unauthorized").Inc()
			response.Abort(c, apperrors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func routeLabel(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return strings.TrimPrefix(path, "/")
}
