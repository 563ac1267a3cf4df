package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/api/middleware"
	"github.com/langchou/carkeep/internal/repository"
	"github.com/langchou/carkeep/internal/service"
)

// GetMyProfile 获取当前用户资料，首次访问时隐式创建
func (h *Handler) GetMyProfile(c *gin.Context) {
	userID := middleware.UserID(c)

	user, err := h.profileService.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to get profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get profile"})
		return
	}

	avatarURL, err := h.profileService.AvatarURL(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("Failed to sign avatar url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user":       user,
		"avatar_url": avatarURL,
	}})
}

// UpdateMyProfile 更新姓名、简介和可见性
func (h *Handler) UpdateMyProfile(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		Name   string `json:"name"`
		Bio    string `json:"bio"`
		Public bool   `json:"public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	if err := h.profileService.UpdateProfile(c.Request.Context(), userID, req.Name, req.Bio, req.Public); err != nil {
		h.logger.Error("Failed to update profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated"})
}

// ClaimUsername 认领用户名
func (h *Handler) ClaimUsername(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	if err := h.profileService.ClaimUsername(c.Request.Context(), userID, req.Username); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username"})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Username taken"})
		default:
			h.logger.Error("Failed to claim username", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim username"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Username claimed"})
}

// UploadAvatar 上传头像
func (h *Handler) UploadAvatar(c *gin.Context) {
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

	url, err := h.profileService.UploadAvatar(c.Request.Context(), userID,
		fileHeader.Filename, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("Failed to upload avatar", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload avatar"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"url": url}})
}

// GetPublicProfile 获取他人公开资料及其车辆
func (h *Handler) GetPublicProfile(c *gin.Context) {
	user, vehicles, err := h.profileService.PublicProfile(c.Request.Context(), c.Param("userID"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		case errors.Is(err, service.ErrProfilePrivate):
			c.JSON(http.StatusForbidden, gin.H{"error": "Profile is private"})
		default:
			h.logger.Error("Failed to get public profile", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get profile"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user":     user,
		"vehicles": vehicles,
	}})
}

// SearchProfiles 用户名前缀搜索
func (h *Handler) SearchProfiles(c *gin.Context) {
	prefix := c.Query("q")
	if prefix == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	users, err := h.profileService.Search(c.Request.Context(), prefix, limit)
	if err != nil {
		h.logger.Error("Failed to search profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search profiles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}
