package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/api/middleware"
	"github.com/langchou/carkeep/internal/models"
	"github.com/langchou/carkeep/internal/repository"
	"github.com/langchou/carkeep/internal/service"
)

// GetVehicleDetails 按牌照查询车辆数据（DVLA + MOT 合并）
func (h *Handler) GetVehicleDetails(c *gin.Context) {
	registration := c.Param("registration")

	details, err := h.lookupService.Details(c.Request.Context(), service.NormalizeRegistration(registration))
	if err != nil {
		if errors.Is(err, service.ErrVehicleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
			return
		}
		h.logger.Error("Failed to look up vehicle", zap.String("registration", registration), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Vehicle lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": details})
}

// CheckVehicleExists 检查牌照是否已在用户车库中
func (h *Handler) CheckVehicleExists(c *gin.Context) {
	userID := middleware.UserID(c)

	exists, err := h.garageService.Exists(c.Request.Context(), userID, c.Param("registration"))
	if err != nil {
		h.logger.Error("Failed to check vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"exists": exists}})
}

// ListVehicles 列出当前用户的车辆
func (h *Handler) ListVehicles(c *gin.Context) {
	userID := middleware.UserID(c)

	vehicles, err := h.garageService.ListVehicles(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vehicles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// CreateVehicle 创建车辆
func (h *Handler) CreateVehicle(c *gin.Context) {
	userID := middleware.UserID(c)

	var vehicle models.Vehicle
	if err := c.ShouldBindJSON(&vehicle); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle payload"})
		return
	}
	if vehicle.Registration == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registration is required"})
		return
	}

	if err := h.garageService.CreateVehicle(c.Request.Context(), userID, &vehicle); err != nil {
		if errors.Is(err, service.ErrDuplicateVehicle) {
			c.JSON(http.StatusConflict, gin.H{"error": "Vehicle already in garage"})
			return
		}
		h.logger.Error("Failed to create vehicle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create vehicle"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": vehicle})
}

// GetVehicle 获取车辆详情及图片签名链接
func (h *Handler) GetVehicle(c *gin.Context) {
	userID := middleware.UserID(c)

	vehicle, err := h.garageService.GetVehicle(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondVehicleError(c, err, "Failed to get vehicle")
		return
	}

	imageURLs, err := h.garageService.VehicleImageURLs(c.Request.Context(), vehicle)
	if err != nil {
		h.logger.Error("Failed to sign image urls", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"vehicle":    vehicle,
		"image_urls": imageURLs,
	}})
}

// UpdateDescription 更新车辆描述
func (h *Handler) UpdateDescription(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	if err := h.garageService.UpdateDescription(c.Request.Context(), userID, c.Param("id"), req.Description); err != nil {
		h.respondVehicleError(c, err, "Failed to update description")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Description updated"})
}

// UploadVehicleImage 上传车辆图片
func (h *Handler) UploadVehicleImage(c *gin.Context) {
	userID := middleware.UserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file"})
		return
	}
	defer file.Close()

	url, err := h.garageService.UploadVehicleImage(c.Request.Context(), userID, c.Param("id"),
		fileHeader.Filename, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		h.respondVehicleError(c, err, "Failed to upload image")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"url": url}})
}

// respondVehicleError 车辆归属类错误的统一映射
func (h *Handler) respondVehicleError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
	case errors.Is(err, service.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the vehicle owner"})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
