package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/api/dvla"
	"github.com/langchou/carkeep/internal/api/mot"
	"github.com/langchou/carkeep/internal/models"
)

// ErrVehicleNotFound 两个数据源都查不到该牌照
var ErrVehicleNotFound = errors.New("vehicle not found")

// LookupService 车辆数据查询服务（DVLA + MOT 合并）
type LookupService struct {
	logger     *zap.Logger
	dvlaClient *dvla.Client
	motClient  *mot.Client
}

// NewLookupService 创建查询服务
func NewLookupService(logger *zap.Logger, dvlaClient *dvla.Client, motClient *mot.Client) *LookupService {
	return &LookupService{
		logger:     logger,
		dvlaClient: dvlaClient,
		motClient:  motClient,
	}
}

// Details 按牌照查询并合并两个数据源
// DVLA 提供厂牌、颜色、年份、排量、税期、MOT 到期；MOT 历史补充型号和首次使用日期。
func (s *LookupService) Details(ctx context.Context, registration string) (*models.VehicleDetails, error) {
	enquiry, err := s.dvlaClient.Lookup(ctx, registration)
	if err != nil {
		if errors.Is(err, dvla.ErrVehicleNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}

	details := &models.VehicleDetails{
		Registration: registration,
		Make:         enquiry.Make,
		Color:        enquiry.Colour,
		Year:         enquiry.YearOfManufacture,
		EngineSize:   enquiry.EngineCapacity,
		TaxDate:      parseDate(enquiry.TaxDueDate),
		MotDate:      parseDate(enquiry.MotExpiryDate),
	}

	history, err := s.motClient.History(ctx, registration)
	if err != nil {
		if !errors.Is(err, mot.ErrNoHistory) {
			// MOT 历史拿不到时降级为仅 DVLA 数据
			s.logger.Warn("MOT history lookup failed",
				zap.String("registration", registration),
				zap.Error(err))
		}
		history = nil
	}

	if history != nil {
		details.Model = history.Model
		details.Registered = parseDate(history.FirstUsedDate)
		if details.MotDate == nil {
			details.MotDate = parseDate(history.MotTestExpiryDate)
		}
	}

	// 没有首次使用日期时按 MOT 到期日倒推三年估算
	if details.Registered == nil && details.MotDate != nil {
		estimated := details.MotDate.AddDate(-3, 0, 0)
		details.Registered = &estimated
	}

	return details, nil
}

// parseDate 解析数据源的日期，DVLA 用连字符，MOT 历史用点号
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006.01.02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
