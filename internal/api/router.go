package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furadapt/api/internal/api/handlers"
	"furadapt/api/internal/api/middleware"
	"furadapt/api/internal/config"
	"furadapt/api/internal/email"
	"furadapt/api/internal/monitoring"
	"furadapt/api/internal/realtime"
	"furadapt/api/internal/services"
	"furadapt/api/internal/storage"
)

// Dependencies are the collaborators the public API is built from.
type Dependencies struct {
	Users     services.IUserService
	Pets      services.IPetService
	Adoptions services.IAdoptionService
	Chat      services.IChatService
	Analytics services.IAnalyticsService
	Storage   storage.IS3Storage
	Images    handlers.ImageQueue
	Hub       *realtime.Hub
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	r := gin.New()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg.RateLimitRefillRate, cfg.RateLimitBucketSize)

	// Order matters: identity is resolved before the limiter so buckets are per user.
	r.Use(middleware.LoggingMiddleware())
	r.Use(gin.Recovery())
	r.Use(monitoring.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CorsOrigins))
	r.Use(middleware.OptionalAuth(cfg.JwtSecret))

	authHandler := handlers.NewAuthHandler(deps.Users, cfg.JwtSecret, cfg.JwtTTL)
	petHandler := handlers.NewPetHandler(deps.Pets, deps.Storage, deps.Images)
	adoptionHandler := handlers.NewAdoptionHandler(deps.Adoptions)
	chatHandler := handlers.NewChatHandler(deps.Chat)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics)
	wsHandler := handlers.NewWSHandler(deps.Hub, cfg.CorsOrigins)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC()})
	})
	r.GET("/metrics", monitoring.PrometheusHandler())
	r.GET("/ws", middleware.AuthMiddleware(cfg.JwtSecret), wsHandler.Connect)

	requireAuth := middleware.AuthMiddleware(cfg.JwtSecret)
	requireAdmin := middleware.AdminMiddleware()

	apiGroup := r.Group("/api")
	apiGroup.Use(rateLimiter.Limit())
	{
		authRoutes := apiGroup.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.GET("/me", requireAuth, authHandler.Me)
		}

		pets := apiGroup.Group("/pets")
		{
			pets.GET("", petHandler.SearchPets)
			pets.GET("/my-pets/all", requireAuth, petHandler.MyPets)
			pets.GET("/:id", petHandler.GetPet)
			pets.POST("", requireAuth, petHandler.CreatePet)
			pets.PUT("/:id", requireAuth, petHandler.UpdatePet)
			pets.DELETE("/:id", requireAuth, petHandler.DeletePet)
			pets.POST("/:id/images/upload-url", requireAuth, petHandler.CreateImageUploadURL)
			pets.POST("/:id/images", requireAuth, petHandler.AttachImage)
		}

		adoptions := apiGroup.Group("/adoptions", requireAuth)
		{
			adoptions.POST("", adoptionHandler.Submit)
			adoptions.GET("", adoptionHandler.List)
			adoptions.GET("/my-pets-requests/all", adoptionHandler.ListForMyPets)
			adoptions.GET("/:id", adoptionHandler.Get)
			adoptions.PUT("/:id", requireAdmin, adoptionHandler.AdminReview)
			adoptions.PUT("/:id/owner-action", adoptionHandler.OwnerAction)
			adoptions.PUT("/:id/complete", adoptionHandler.Complete)
			adoptions.DELETE("/:id", adoptionHandler.Withdraw)
		}

		chat := apiGroup.Group("/chat", requireAuth)
		{
			chat.GET("", chatHandler.Conversations)
			chat.GET("/unread/count", chatHandler.UnreadCount)
			chat.GET("/:userId", chatHandler.History)
			chat.POST("", chatHandler.Send)
			chat.PUT("/:userId/read", chatHandler.MarkRead)
		}

		analytics := apiGroup.Group("/analytics", requireAuth, requireAdmin)
		{
			analytics.GET("/dashboard", analyticsHandler.Dashboard)
			analytics.GET("/pets", analyticsHandler.PetReport)
		}
	}

	return r
}

// MailboxReader returns the last email captured for an address.
type MailboxReader interface {
	Latest(ctx context.Context, address string) (*email.CapturedEmail, error)
}

// SetupServiceRouter configures the internal service engine. mailbox may be
// nil when email capture is off.
func SetupServiceRouter(mailbox MailboxReader, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LoggingMiddleware(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "ping":
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "pong"})

		case "shutdown":
			zap.L().Info("shutdown requested via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				zap.L().Warn("shutdown already signaled")
			}

		case "getTestEmail":
			if mailbox == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Email capture is disabled"})
				return
			}
			var args []string // ["email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [email]"})
				return
			}

			// The notification task runs asynchronously, so poll briefly.
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			captured, err := pollMailbox(ctx, mailbox, args[0])
			if err != nil {
				zap.L().Error("service API: reading mailbox failed", zap.String("email", args[0]), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
				return
			}
			if captured == nil {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("No captured email for %s", args[0])})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": captured})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

func pollMailbox(ctx context.Context, mailbox MailboxReader, address string) (*email.CapturedEmail, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		captured, err := mailbox.Latest(ctx, address)
		if err != nil || captured != nil {
			return captured, err
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
		}
	}
}
