package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"furadapt/api/internal/api/middleware"
	"furadapt/api/internal/services"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error. Unclassified errors are logged and
// hidden behind fallback.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		zap.L().Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": services.ErrorMessage(err, fallback)})
}

// badRequest reports a payload that failed binding.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": services.DescribeValidation(err)})
}

func objectIDParam(c *gin.Context, name, label string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + label + " ID format"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// mustActor returns the caller set by AuthMiddleware.
func mustActor(c *gin.Context) (services.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return actor, ok
}
