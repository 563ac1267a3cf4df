package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/config"
	"github.com/langchou/carkeep/internal/models"
	"github.com/langchou/carkeep/internal/repository"
	"github.com/langchou/carkeep/internal/storage"
)

var (
	// ErrInvalidUsername 用户名不符合规则
	ErrInvalidUsername = errors.New("invalid username")
	// ErrUsernameTaken 用户名已被占用
	ErrUsernameTaken = errors.New("username taken")
	// ErrProfilePrivate 对方资料未公开
	ErrProfilePrivate = errors.New("profile is private")
)

// ProfileService 用户资料服务
type ProfileService struct {
	cfg         *config.Config
	logger      *zap.Logger
	userRepo    *repository.UserRepository
	vehicleRepo *repository.VehicleRepository
	store       *storage.Client
}

// NewProfileService 创建资料服务
func NewProfileService(
	cfg *config.Config,
	logger *zap.Logger,
	userRepo *repository.UserRepository,
	vehicleRepo *repository.VehicleRepository,
	store *storage.Client,
) *ProfileService {
	return &ProfileService{
		cfg:         cfg,
		logger:      logger,
		userRepo:    userRepo,
		vehicleRepo: vehicleRepo,
		store:       store,
	}
}

// GetOrCreate 获取当前用户资料，首次访问时隐式创建
func (s *ProfileService) GetOrCreate(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByUserID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user = &models.User{UserID: userID}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User profile created", zap.String("user_id", userID))
	return user, nil
}

// ClaimUsername 认领用户名，重复或不合规则会被拒绝
func (s *ProfileService) ClaimUsername(ctx context.Context, userID, username string) error {
	if !models.ValidUsername(username) {
		return ErrInvalidUsername
	}

	count, err := s.userRepo.CountByUsername(ctx, username)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrUsernameTaken
	}

	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return s.userRepo.SetUsername(ctx, userID, username)
}

// UpdateProfile 更新姓名、简介和可见性
func (s *ProfileService) UpdateProfile(ctx context.Context, userID, name, bio string, public bool) error {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return s.userRepo.UpdateProfile(ctx, userID, name, bio, public)
}

// UploadAvatar 上传头像并更新资料，返回签名链接
func (s *ProfileService) UploadAvatar(ctx context.Context, userID, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return "", err
	}

	objectPath := fmt.Sprintf("%s/%s", userID, timestampName(filename))
	if err := s.store.Upload(ctx, s.cfg.ProfileBucket, objectPath, reader, size, contentType); err != nil {
		return "", err
	}

	if err := s.userRepo.SetAvatar(ctx, userID, objectPath); err != nil {
		return "", err
	}

	return s.store.SignedURL(ctx, s.cfg.ProfileBucket, objectPath, s.cfg.SignedURLTTL)
}

// AvatarURL 把存储的头像路径换成签名链接，未设置头像时返回空串
func (s *ProfileService) AvatarURL(ctx context.Context, user *models.User) (string, error) {
	if user.Avatar == "" {
		return "", nil
	}
	return s.store.SignedURL(ctx, s.cfg.ProfileBucket, user.Avatar, s.cfg.SignedURLTTL)
}

// PublicProfile 获取他人公开资料及其车辆，未公开返回 ErrProfilePrivate
func (s *ProfileService) PublicProfile(ctx context.Context, userID string) (*models.User, []*models.Vehicle, error) {
	user, err := s.userRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !user.Public {
		return nil, nil, ErrProfilePrivate
	}

	vehicles, err := s.vehicleRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, vehicles, nil
}

// Search 用户名前缀搜索
func (s *ProfileService) Search(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	return s.userRepo.SearchByUsername(ctx, prefix, limit)
}
