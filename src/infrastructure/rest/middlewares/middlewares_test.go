package middlewares

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/private", AuthJWTMiddleware(testSecret, logger.NewNopLogger()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"company": CompanyID(c)})
	})
	return router
}

func TestAuthJWTMiddleware(t *testing.T) {
	valid := jwt.MapClaims{"exp": float64(time.Now().Add(time.Hour).Unix()), "type": "access", "company_id": 7, "id": 3}
	expired := jwt.MapClaims{"exp": float64(time.Now().Add(-time.Hour).Unix()), "type": "access", "company_id": 7}
	refresh := jwt.MapClaims{"exp": float64(time.Now().Add(time.Hour).Unix()), "type": "refresh", "company_id": 7}
	noCompany := jwt.MapClaims{"exp": float64(time.Now().Add(time.Hour).Unix()), "type": "access"}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + signedToken(t, valid, testSecret), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signedToken(t, valid, "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + signedToken(t, expired, testSecret), http.StatusUnauthorized},
		{"refresh token", "Bearer " + signedToken(t, refresh, testSecret), http.StatusForbidden},
		{"no company", "Bearer " + signedToken(t, noCompany, testSecret), http.StatusForbidden},
	}
	router := authRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"company":7}`, w.Body.String())
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/full", func(c *gin.Context) {
		_ = c.Error(domainErrors.NewAppErrorWithType(domainErrors.CapacityExceeded))
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/full", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"all groups of this campaign are full"}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}
