package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/config"
	"github.com/langchou/carkeep/internal/models"
	"github.com/langchou/carkeep/internal/repository"
	"github.com/langchou/carkeep/internal/storage"
)

var (
	// ErrDuplicateVehicle 用户车库里已有该牌照
	ErrDuplicateVehicle = errors.New("vehicle already in garage")
	// ErrNotOwner 操作者不是车辆归属人
	ErrNotOwner = errors.New("not the vehicle owner")
	// ErrInvalidCategory 日志类目不合法
	ErrInvalidCategory = errors.New("invalid logbook category")
)

// GarageService 车库服务
type GarageService struct {
	cfg         *config.Config
	logger      *zap.Logger
	vehicleRepo *repository.VehicleRepository
	logRepo     *repository.VehicleLogRepository
	store       *storage.Client
}

// NewGarageService 创建车库服务
func NewGarageService(
	cfg *config.Config,
	logger *zap.Logger,
	vehicleRepo *repository.VehicleRepository,
	logRepo *repository.VehicleLogRepository,
	store *storage.Client,
) *GarageService {
	return &GarageService{
		cfg:         cfg,
		logger:      logger,
		vehicleRepo: vehicleRepo,
		logRepo:     logRepo,
		store:       store,
	}
}

// NormalizeRegistration 牌照统一为大写去空格
func NormalizeRegistration(registration string) string {
	return strings.ToUpper(strings.ReplaceAll(registration, " ", ""))
}

// Exists 检查用户是否已添加该牌照
func (s *GarageService) Exists(ctx context.Context, userID, registration string) (bool, error) {
	return s.vehicleRepo.ExistsByRegistration(ctx, userID, NormalizeRegistration(registration))
}

// CreateVehicle 创建车辆，同牌照重复添加会被拒绝
func (s *GarageService) CreateVehicle(ctx context.Context, userID string, v *models.Vehicle) error {
	v.Registration = NormalizeRegistration(v.Registration)
	v.UserID = userID

	exists, err := s.vehicleRepo.ExistsByRegistration(ctx, userID, v.Registration)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateVehicle
	}

	if err := s.vehicleRepo.Create(ctx, v); err != nil {
		return err
	}

	s.logger.Info("Vehicle created",
		zap.String("vehicle_id", v.ID),
		zap.String("registration", v.Registration))
	return nil
}

// ListVehicles 列出用户的车辆
func (s *GarageService) ListVehicles(ctx context.Context, userID string) ([]*models.Vehicle, error) {
	return s.vehicleRepo.ListByUserID(ctx, userID)
}

// GetVehicle 获取用户的车辆，归属不符返回 ErrNotOwner
func (s *GarageService) GetVehicle(ctx context.Context, userID, vehicleID string) (*models.Vehicle, error) {
	v, err := s.vehicleRepo.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, ErrNotOwner
	}
	return v, nil
}

// UpdateDescription 更新车辆描述
func (s *GarageService) UpdateDescription(ctx context.Context, userID, vehicleID, description string) error {
	if _, err := s.GetVehicle(ctx, userID, vehicleID); err != nil {
		return err
	}
	return s.vehicleRepo.UpdateDescription(ctx, vehicleID, description)
}

// UploadVehicleImage 上传车辆图片并追加到图片列表，返回带签名的访问链接
func (s *GarageService) UploadVehicleImage(ctx context.Context, userID, vehicleID, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	v, err := s.GetVehicle(ctx, userID, vehicleID)
	if err != nil {
		return "", err
	}

	objectPath := fmt.Sprintf("%s/%s/%s", userID, v.Registration, timestampName(filename))
	if err := s.store.Upload(ctx, s.cfg.VehicleImageBucket, objectPath, reader, size, contentType); err != nil {
		return "", err
	}

	if err := s.vehicleRepo.AppendImage(ctx, vehicleID, objectPath); err != nil {
		return "", err
	}

	return s.store.SignedURL(ctx, s.cfg.VehicleImageBucket, objectPath, s.cfg.SignedURLTTL)
}

// VehicleImageURLs 把存储的对象路径换成签名链接
func (s *GarageService) VehicleImageURLs(ctx context.Context, v *models.Vehicle) ([]string, error) {
	urls := make([]string, 0, len(v.Images))
	for _, objectPath := range v.Images {
		u, err := s.store.SignedURL(ctx, s.cfg.VehicleImageBucket, objectPath, s.cfg.SignedURLTTL)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// CreateLog 创建日志簿条目
func (s *GarageService) CreateLog(ctx context.Context, userID string, l *models.VehicleLog) error {
	if !models.ValidCategory(l.Category) {
		return ErrInvalidCategory
	}
	if _, err := s.GetVehicle(ctx, userID, l.VehicleID); err != nil {
		return err
	}

	l.UserID = userID
	if err := s.logRepo.Create(ctx, l); err != nil {
		return err
	}

	s.logger.Info("Logbook entry created",
		zap.String("log_id", l.ID),
		zap.String("vehicle_id", l.VehicleID),
		zap.String("category", models.CategoryNames[l.Category]))
	return nil
}

// ListLogs 列出车辆日志
func (s *GarageService) ListLogs(ctx context.Context, userID, vehicleID string) ([]*models.VehicleLog, error) {
	if _, err := s.GetVehicle(ctx, userID, vehicleID); err != nil {
		return nil, err
	}
	return s.logRepo.ListByVehicleID(ctx, vehicleID)
}

// UploadLogImage 上传日志图片附件
func (s *GarageService) UploadLogImage(ctx context.Context, userID, vehicleID, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.uploadLogAttachment(ctx, userID, vehicleID, "images", filename, reader, size, contentType)
}

// UploadLogFile 上传日志文件附件
func (s *GarageService) UploadLogFile(ctx context.Context, userID, vehicleID, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.uploadLogAttachment(ctx, userID, vehicleID, "files", filename, reader, size, contentType)
}

func (s *GarageService) uploadLogAttachment(ctx context.Context, userID, vehicleID, kind, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.GetVehicle(ctx, userID, vehicleID); err != nil {
		return "", err
	}

	objectPath := fmt.Sprintf("%s/%s/%s/%s", userID, vehicleID, kind, timestampName(filename))
	if err := s.store.Upload(ctx, s.cfg.LogbookBucket, objectPath, reader, size, contentType); err != nil {
		return "", err
	}

	return objectPath, nil
}

// timestampName 以毫秒时间戳命名，保留原扩展名，避免重名覆盖
func timestampName(filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		ext = ".jpeg"
	}
	return fmt.Sprintf("%d%s", time.Now().UnixMilli(), ext)
}
