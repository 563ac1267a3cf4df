package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/api/middleware"
	"github.com/langchou/carkeep/internal/repository"
	"github.com/langchou/carkeep/internal/service"
)

// DeleteVehicle 发起车辆删除流程，立即返回意向 ID，后台推进
func (h *Handler) DeleteVehicle(c *gin.Context) {
	userID := middleware.UserID(c)

	transfer, err := h.transferService.StartDelete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
			return
		}
		h.logger.Error("Failed to start delete", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start delete"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": transfer})
}

// HandoverVehicle 发起车辆交接流程
func (h *Handler) HandoverVehicle(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		ToUserID string `json:"to_user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ToUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Target user is required"})
		return
	}

	transfer, err := h.transferService.StartHandover(c.Request.Context(), userID, c.Param("id"), req.ToUserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfHandover):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot hand over to yourself"})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		default:
			h.logger.Error("Failed to start handover", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start handover"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": transfer})
}

// GetTransfer 查询转移意向状态
func (h *Handler) GetTransfer(c *gin.Context) {
	transfer, err := h.transferService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transfer not found"})
			return
		}
		h.logger.Error("Failed to get transfer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get transfer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transfer})
}
