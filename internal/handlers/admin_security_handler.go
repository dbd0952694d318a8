package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/security"
)

// AdminSecurityHandler exposes blocklist inspection and unblock to operators.
type AdminSecurityHandler struct {
	sec    *security.State
	logger *logrus.Logger
}

// UnblockRequest admin unblock request
type UnblockRequest struct {
	Namespace string `json:"namespace" binding:"required"` // ip or aa
	Key       string `json:"key" binding:"required"`
}

func NewAdminSecurityHandler(sec *security.State, logger *logrus.Logger) *AdminSecurityHandler {
	return &AdminSecurityHandler{
		sec:    sec,
		logger: logger,
	}
}

// BlocklistHandler GET /admin/security/blocklist
func (h *AdminSecurityHandler) BlocklistHandler(c *gin.Context) {
	entries := h.sec.Blocklist.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(entries),
		"entries": entries,
	})
}

// UnblockHandler POST /admin/security/unblock
func (h *AdminSecurityHandler) UnblockHandler(c *gin.Context) {
	var req UnblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	if req.Namespace != security.NamespaceIP && req.Namespace != security.NamespaceAA {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "namespace must be 'ip' or 'aa'",
			"code":    "INVALID_NAMESPACE",
		})
		return
	}

	removed := h.sec.Blocklist.Unblock(req.Namespace, req.Key)
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "No active block for this key",
			"code":    "BLOCK_NOT_FOUND",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"namespace": req.Namespace,
		"key":       req.Key,
		"admin":     c.GetString("admin_username"),
	}).Info("Blocklist entry removed by admin")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
