package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/langchou/carkeep/internal/models"
)

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, registration, user_id, COALESCE(make, ''), COALESCE(model, ''), COALESCE(year, 0),
	COALESCE(color, ''), COALESCE(engine_size, 0), registered, tax_date, mot_date, insurance_date, service_date,
	images, COALESCE(description, ''), COALESCE(nickname, ''), created_at, updated_at`

func scanVehicle(row pgx.Row) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(
		&v.ID,
		&v.Registration,
		&v.UserID,
		&v.Make,
		&v.Model,
		&v.Year,
		&v.Color,
		&v.EngineSize,
		&v.Registered,
		&v.TaxDate,
		&v.MotDate,
		&v.InsuranceDate,
		&v.ServiceDate,
		&v.Images,
		&v.Description,
		&v.Nickname,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan vehicle: %w", err)
	}
	return v, nil
}

// Create 创建车辆
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	query := `
		INSERT INTO user_vehicles (id, registration, user_id, make, model, year, color, engine_size,
			registered, tax_date, mot_date, insurance_date, service_date, images, description, nickname,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	now := time.Now()
	_, err := r.db.Pool.Exec(ctx, query,
		v.ID,
		v.Registration,
		v.UserID,
		v.Make,
		v.Model,
		v.Year,
		v.Color,
		v.EngineSize,
		v.Registered,
		v.TaxDate,
		v.MotDate,
		v.InsuranceDate,
		v.ServiceDate,
		v.Images,
		v.Description,
		v.Nickname,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}

	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

// GetByID 通过 ID 获取车辆
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM user_vehicles WHERE id = $1`
	return scanVehicle(r.db.Pool.QueryRow(ctx, query, id))
}

// ListByUserID 获取用户的所有车辆
func (r *VehicleRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM user_vehicles WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}

	return vehicles, nil
}

// ExistsByRegistration 检查用户是否已添加该牌照的车辆
func (r *VehicleRepository) ExistsByRegistration(ctx context.Context, userID, registration string) (bool, error) {
	var count int64
	query := `SELECT COUNT(*) FROM user_vehicles WHERE user_id = $1 AND registration = $2`
	if err := r.db.Pool.QueryRow(ctx, query, userID, registration).Scan(&count); err != nil {
		return false, fmt.Errorf("check vehicle exists: %w", err)
	}
	return count > 0, nil
}

// UpdateDescription 更新车辆描述
func (r *VehicleRepository) UpdateDescription(ctx context.Context, id, description string) error {
	query := `UPDATE user_vehicles SET description = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Pool.Exec(ctx, query, description, id)
	if err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	return nil
}

// AppendImage 追加车辆图片 URL
func (r *VehicleRepository) AppendImage(ctx context.Context, id, imageURL string) error {
	query := `UPDATE user_vehicles SET images = array_append(images, $1), updated_at = NOW() WHERE id = $2`
	_, err := r.db.Pool.Exec(ctx, query, imageURL, id)
	if err != nil {
		return fmt.Errorf("append image: %w", err)
	}
	return nil
}

// SetOwner 变更车主（交接步骤 1）
func (r *VehicleRepository) SetOwner(ctx context.Context, id, userID string) error {
	query := `UPDATE user_vehicles SET user_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Pool.Exec(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("set vehicle owner: %w", err)
	}
	return nil
}

// Delete 删除车辆记录
func (r *VehicleRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM user_vehicles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	return nil
}
