package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// stateParam is the query parameter carrying the verification token.
const stateParam = "state"

// stateToken returns the token a request refers to. An absent parameter
// yields "", which the registry reports as not found.
func stateToken(c *gin.Context) string {
	return strings.TrimSpace(c.Query(stateParam))
}

func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
