package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/app"
	"relay-backend/internal/config"
	"relay-backend/internal/middleware"
	"relay-backend/internal/security"
)

// corsMiddleware CORS middleware
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		var allowedOrigins []string
		allowCredentials := true
		maxAge := 3600

		envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if envOrigins != "" {
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		} else {
			allowedOrigins = []string{"*"}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					if allowCredentials {
						c.Header("Access-Control-Allow-Credentials", "true")
					}
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, Idempotency-Key")
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter builds the gin engine and wires every route through its
// security class.
func SetupRouter(container *app.ServiceContainer, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(middleware.RequestMetrics())

	guard := container.SecurityMiddleware
	auth := container.AuthMiddleware
	adminAuth := container.AdminAuthMiddleware
	localhost := container.LocalhostOnly

	// Liveness and metrics.
	r.GET("/health", container.HealthHandler.BasicHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket push stream.
	r.GET("/ws/userops", container.WebSocketHandler.StreamHandler)

	// Auth and linked smart accounts.
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", guard.Guard(security.ClassDefault), container.AuthHandler.LoginHandler)
		authGroup.GET("/profile", auth.RequireAuth(), container.AuthHandler.ProfileHandler)
		authGroup.POST("/accounts", auth.RequireAuth(), container.AuthHandler.LinkAccountHandler)
		authGroup.DELETE("/accounts/:address", auth.RequireAuth(), container.AuthHandler.UnlinkAccountHandler)
	}

	// Relay endpoints. OptionalAuth runs first so rate limiting buckets by
	// user when a token is present.
	chain := r.Group("/chain", auth.OptionalAuth())
	{
		chain.POST("/mint", guard.Guard(security.ClassMint), container.RelayHandler.MintHandler)
		chain.POST("/award", guard.Guard(security.ClassMint), container.RelayHandler.AwardHandler)
		chain.POST("/redeem", guard.Guard(security.ClassHighRisk), container.RelayHandler.RedeemHandler)
		chain.POST("/redeem_permit", guard.Guard(security.ClassHighRisk), container.RelayHandler.RedeemPermitHandler)
		chain.POST("/mint_via_minter", guard.Guard(security.ClassMint), container.RelayHandler.MintViaMinterHandler)

		chain.GET("/balance/:address", guard.Guard(security.ClassStatus), container.RelayHandler.BalanceHandler)
		chain.GET("/vouchers/:address", guard.Guard(security.ClassStatus), container.RelayHandler.VouchersHandler)

		chain.GET("/health/detailed", guard.Guard(security.ClassStatus), container.HealthHandler.DetailedHandler)
		chain.GET("/health/security", guard.Guard(security.ClassStatus), container.HealthHandler.SecurityHandler)

		aa := chain.Group("/aa", auth.RequireAuth())
		{
			aa.POST("/send", guard.Guard(security.ClassHighRisk), container.UserOpHandler.SendHandler)
			aa.GET("/status/:hash", guard.Guard(security.ClassStatus), container.UserOpHandler.StatusHandler)
		}
	}

	// Admin endpoints: IP-restricted, TOTP-authenticated.
	admin := r.Group("/admin", localhost.Restrict())
	{
		admin.POST("/auth", container.AdminAuthHandler.AdminLoginHandler)
		admin.POST("/auth/totp-secret", container.AdminAuthHandler.GenerateTOTPSecretHandler)

		adminSec := admin.Group("/security", adminAuth.RequireAdminAuth())
		{
			adminSec.GET("/blocklist", container.AdminSecurityHandler.BlocklistHandler)
			adminSec.POST("/unblock", container.AdminSecurityHandler.UnblockHandler)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Route not found",
			"code":    "NOT_FOUND",
		})
	})

	logger.Info("🛣️ Router initialized")
	return r
}
