package services

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/models"
)

// Actor is the caller identity supplied by the auth layer. It is trusted as-is.
type Actor struct {
	UserID primitive.ObjectID
	Role   models.Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}
