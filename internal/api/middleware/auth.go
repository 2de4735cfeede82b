package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/auth"
	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

const (
	// ContextKeyUserID holds the caller's primitive.ObjectID.
	ContextKeyUserID = "userID"
	// ContextKeyRole holds the caller's models.Role.
	ContextKeyRole = "role"
	// ContextKeyIsAdmin holds whether the caller is an admin.
	ContextKeyIsAdmin = "isAdmin"
)

// tokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter when the header is absent (websocket clients).
func tokenFromRequest(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, true
		}
		return "", false
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(ContextKeyUserID, claims.ID())
	c.Set(ContextKeyRole, claims.Role)
	c.Set(ContextKeyIsAdmin, claims.IsAdmin())
}

// AuthMiddleware rejects requests without a valid JWT.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := tokenFromRequest(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid token is present and lets
// anonymous requests through otherwise.
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := tokenFromRequest(c); ok {
			if claims, err := auth.ValidateJWT(token, jwtSecret); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

// AdminMiddleware requires AuthMiddleware to run first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required"})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the authenticated caller, if any.
func ActorFrom(c *gin.Context) (services.Actor, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return services.Actor{}, false
	}
	userID, ok := v.(primitive.ObjectID)
	if !ok {
		return services.Actor{}, false
	}
	role, _ := c.Get(ContextKeyRole)
	r, _ := role.(models.Role)
	return services.Actor{UserID: userID, Role: r}, true
}
