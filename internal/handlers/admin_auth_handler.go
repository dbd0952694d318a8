package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/auth"
	"relay-backend/internal/config"
)

// AdminAuthHandler authenticates operators with TOTP and issues admin JWTs.
type AdminAuthHandler struct {
	jwtSecret  []byte
	totpSecret string
	username   string
	logger     *logrus.Logger
}

// AdminLoginRequest admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse admin login response
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

func NewAdminAuthHandler(logger *logrus.Logger) *AdminAuthHandler {
	cfg := config.AppConfig.Admin

	if cfg.TOTPSecret == "" {
		logger.Warn("⚠️ ADMIN_TOTP_SECRET is not set, admin login will be rejected")
	}

	username := cfg.Username
	if username == "" {
		username = "admin"
	}

	return &AdminAuthHandler{
		jwtSecret:  []byte(cfg.JWTSecret),
		totpSecret: cfg.TOTPSecret,
		username:   username,
		logger:     logger,
	}
}

// AdminLoginHandler validates the TOTP code and returns an admin token.
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.totpSecret == "" {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Server misconfiguration: admin TOTP secret not set",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if req.Username != h.username {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.totpSecret) {
		h.logger.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Warn("Admin login failed - invalid TOTP code")

		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	token, err := auth.GenerateAdminToken(req.Username, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"username": req.Username,
	}).Info("Admin logged in")

	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler provisions a new TOTP secret. Localhost only; the
// returned secret must be stored in ADMIN_TOTP_SECRET by the operator.
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "relay-backend",
		AccountName: h.username,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
	})
}
