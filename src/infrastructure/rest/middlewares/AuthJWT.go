package middlewares

import (
	"net/http"
	"strings"

	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const (
	CompanyIDKey = "companyID"
	UserIDKey    = "userID"
)

// AuthJWTMiddleware accepts HS256 access tokens and stores the tenant they
// belong to under CompanyIDKey. Tokens are issued by the account service.
func AuthJWTMiddleware(accessSecret string, loggerInstance *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token not provided"})
			return
		}
		if accessSecret == "" {
			loggerInstance.Error("JWT access secret not configured")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication not configured"})
			return
		}

		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(accessSecret), nil
		})
		if err != nil {
			loggerInstance.Debug("Rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if _, ok := claims["exp"].(float64); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		if t, ok := claims["type"].(string); !ok || t != "access" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token type mismatch"})
			return
		}

		companyID, ok := claims["company_id"].(float64)
		if !ok || companyID <= 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid company in token"})
			return
		}

		c.Set(CompanyIDKey, int(companyID))
		if userID, ok := claims["id"].(float64); ok {
			c.Set(UserIDKey, int(userID))
		}
		c.Next()
	}
}

// CompanyID returns the tenant set by AuthJWTMiddleware
func CompanyID(c *gin.Context) int {
	return c.GetInt(CompanyIDKey)
}
