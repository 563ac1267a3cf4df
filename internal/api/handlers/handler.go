package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/service"
	"github.com/langchou/carkeep/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger          *zap.Logger
	lookupService   *service.LookupService
	garageService   *service.GarageService
	profileService  *service.ProfileService
	transferService *service.TransferService
	wsHub           *ws.Hub
	upgrader        websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	lookupService *service.LookupService,
	garageService *service.GarageService,
	profileService *service.ProfileService,
	transferService *service.TransferService,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:          logger,
		lookupService:   lookupService,
		garageService:   garageService,
		profileService:  profileService,
		transferService: transferService,
		wsHub:           wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc) {
	api := r.Group("/api/v1", auth)
	{
		// 车辆数据查询
		api.GET("/vehicle/:registration/details", h.GetVehicleDetails)

		// 车库
		api.GET("/garage/vehicle/:registration/exists", h.CheckVehicleExists)
		api.GET("/garage/vehicles", h.ListVehicles)
		api.POST("/garage/vehicles", h.CreateVehicle)
		api.GET("/garage/vehicles/:id", h.GetVehicle)
		api.PUT("/garage/vehicles/:id/description", h.UpdateDescription)
		api.POST("/garage/vehicles/:id/images", h.UploadVehicleImage)
		api.DELETE("/garage/vehicles/:id", h.DeleteVehicle)
		api.POST("/garage/vehicles/:id/handover", h.HandoverVehicle)
		api.GET("/garage/transfers/:id", h.GetTransfer)

		// 日志簿
		api.GET("/garage/vehicles/:id/logs", h.ListLogs)
		api.POST("/garage/vehicles/:id/logs", h.CreateLog)
		api.POST("/garage/vehicles/:id/logs/images", h.UploadLogImage)
		api.POST("/garage/vehicles/:id/logs/files", h.UploadLogFile)

		// 用户资料
		api.GET("/profile/me", h.GetMyProfile)
		api.PUT("/profile/me", h.UpdateMyProfile)
		api.POST("/profile/me/username", h.ClaimUsername)
		api.POST("/profile/me/avatar", h.UploadAvatar)
		api.GET("/profile/search", h.SearchProfiles)
		api.GET("/profile/user/:userID", h.GetPublicProfile)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
