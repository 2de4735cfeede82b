package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"furadapt/api/internal/auth"
	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

// AuthHandler serves registration, login and the current-user lookup.
type AuthHandler struct {
	userService services.IUserService
	jwtSecret   string
	jwtTTL      time.Duration
}

func NewAuthHandler(userService services.IUserService, jwtSecret string, jwtTTL time.Duration) *AuthHandler {
	return &AuthHandler{userService: userService, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

type authResponse struct {
	Token string              `json:"token"`
	User  *models.UserSummary `json:"user"`
}

func (h *AuthHandler) issue(c *gin.Context, status int, user *models.User) {
	token, err := auth.GenerateJWT(user.ID, user.Role, h.jwtSecret, h.jwtTTL)
	if err != nil {
		respondError(c, err, "Failed to issue token")
		return
	}
	c.JSON(status, authResponse{Token: token, User: user.Summary()})
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var input models.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.Register(c.Request.Context(), input)
	if err != nil {
		respondError(c, err, "Failed to register user")
		return
	}
	h.issue(c, http.StatusCreated, user)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.Authenticate(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		if statusFor(err) == http.StatusForbidden {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		respondError(c, err, "Failed to log in")
		return
	}
	h.issue(c, http.StatusOK, user)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err, "Failed to load user")
		return
	}
	c.JSON(http.StatusOK, user.Summary())
}
