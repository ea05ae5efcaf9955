package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/alterra/pkg/response"
)

func newSecretRouter(secret string, reached *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/step1", CallbackSecret(secret), func(c *gin.Context) {
		*reached = true
		c.Status(http.StatusOK)
	})
	return r
}

func TestCallbackSecret(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{name: "match", secret: "s3cret", header: "s3cret", status: http.StatusOK},
		{name: "mismatch", secret: "s3cret", header: "wrong", status: http.StatusUnauthorized},
		{name: "prefix", secret: "s3cret", header: "s3c", status: http.StatusUnauthorized},
		{name: "missing", secret: "s3cret", header: "", status: http.StatusUnauthorized},
		{name: "unconfigured", secret: "", header: "", status: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reached := false
			r := newSecretRouter(tc.secret, &reached)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/step1?state=T", nil)
			if tc.header != "" {
				req.Header.Set(SecretHeader, tc.header)
			}
			r.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			require.Equal(t, tc.status == http.StatusOK, reached)

			if tc.status == http.StatusUnauthorized {
				var payload response.Response
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
				require.Equal(t, "UNAUTHORIZED", payload.Error.Code)
			}
		})
	}
}
