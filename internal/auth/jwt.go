package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/models"
)

const tokenIssuer = "furadapt-api"

// Claims carry the caller identity used by the adoption and messaging routes.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims

	id primitive.ObjectID
}

// IsAdmin reports whether the token was issued to an admin.
func (c *Claims) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// ID is the user id parsed by ValidateJWT.
func (c *Claims) ID() primitive.ObjectID {
	return c.id
}

// GenerateJWT signs a session token for a user.
func GenerateJWT(userID primitive.ObjectID, role models.Role, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID.Hex(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// ValidateJWT verifies signature, expiry and issuer, and resolves the user id.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secretKey), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	switch claims.Role {
	case models.RoleUser, models.RoleAdmin:
	default:
		return nil, errors.New("unknown role in JWT")
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id in JWT: %w", err)
	}
	claims.id = id
	return claims, nil
}
