package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"relay-backend/internal/auth"
	"relay-backend/internal/config"
	"relay-backend/internal/dto"
	"relay-backend/internal/repository"
)

// AuthHandler issues user JWTs and manages linked smart accounts.
type AuthHandler struct {
	accounts repository.SmartAccountRepository
	logger   *logrus.Logger
}

func NewAuthHandler(accounts repository.SmartAccountRepository, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// LoginHandler exchanges a user id (plus the dev password when configured)
// for a JWT.
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.LoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if devPassword := config.AppConfig.Auth.DevPassword; devPassword != "" {
		if req.Password != devPassword {
			h.logger.WithFields(logrus.Fields{
				"user_id": req.UserID,
			}).Warn("Login rejected - wrong password")

			c.JSON(http.StatusUnauthorized, dto.LoginResponse{
				Success: false,
				Message: "Invalid credentials",
			})
			return
		}
	}

	token, err := auth.GenerateUserToken(req.UserID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate JWT")
		c.JSON(http.StatusInternalServerError, dto.LoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": req.UserID,
	}).Info("User logged in")

	c.JSON(http.StatusOK, dto.LoginResponse{
		Success: true,
		Token:   token,
	})
}

// ProfileHandler returns the caller identity and linked smart accounts.
func (h *AuthHandler) ProfileHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	accounts, err := h.accounts.FindByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to load linked accounts",
			"code":    "DB_ERROR",
		})
		return
	}

	addresses := make([]string, len(accounts))
	linkedAt := make([]int64, len(accounts))
	for i, acc := range accounts {
		addresses[i] = acc.AAAddress
		linkedAt[i] = acc.CreatedAt.Unix()
	}

	c.JSON(http.StatusOK, dto.ProfileResponse{
		Success:  true,
		UserID:   userID,
		Accounts: addresses,
		LinkedAt: linkedAt,
	})
}

// LinkAccountHandler links a smart account address to the caller.
func (h *AuthHandler) LinkAccountHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	var req dto.LinkAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	if !common.IsHexAddress(req.AAAddress) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid smart account address",
			"code":    "INVALID_ADDRESS",
		})
		return
	}

	account, err := h.accounts.Link(c.Request.Context(), userID, req.AAAddress)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate") ||
			strings.Contains(strings.ToLower(err.Error()), "unique") {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   "Smart account is already linked",
				"code":    "ACCOUNT_ALREADY_LINKED",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to link account",
			"code":    "DB_ERROR",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"aa_address": account.AAAddress,
	}).Info("Smart account linked")

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"aa_address": account.AAAddress,
	})
}

// UnlinkAccountHandler removes a linked smart account.
func (h *AuthHandler) UnlinkAccountHandler(c *gin.Context) {
	userID := c.GetString("user_id")
	aaAddress := c.Param("address")

	if err := h.accounts.Unlink(c.Request.Context(), userID, aaAddress); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Smart account not found",
				"code":    "ACCOUNT_NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to unlink account",
			"code":    "DB_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
