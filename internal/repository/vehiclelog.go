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

// VehicleLogRepository 日志簿数据仓库
type VehicleLogRepository struct {
	db *DB
}

// NewVehicleLogRepository 创建日志簿仓库
func NewVehicleLogRepository(db *DB) *VehicleLogRepository {
	return &VehicleLogRepository{db: db}
}

const logColumns = `id, vehicle_id, user_id, category, title, date, COALESCE(description, ''),
	COALESCE(notes, ''), cost, images, files, created_at`

func scanLog(row pgx.Row) (*models.VehicleLog, error) {
	l := &models.VehicleLog{}
	err := row.Scan(
		&l.ID,
		&l.VehicleID,
		&l.UserID,
		&l.Category,
		&l.Title,
		&l.Date,
		&l.Description,
		&l.Notes,
		&l.Cost,
		&l.Images,
		&l.Files,
		&l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan vehicle log: %w", err)
	}
	return l, nil
}

// Create 创建日志簿条目
func (r *VehicleLogRepository) Create(ctx context.Context, l *models.VehicleLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Images == nil {
		l.Images = []string{}
	}
	if l.Files == nil {
		l.Files = []string{}
	}
	query := `
		INSERT INTO vehicle_logs (id, vehicle_id, user_id, category, title, date, description, notes, cost, images, files, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	now := time.Now()
	_, err := r.db.Pool.Exec(ctx, query,
		l.ID,
		l.VehicleID,
		l.UserID,
		l.Category,
		l.Title,
		l.Date,
		l.Description,
		l.Notes,
		l.Cost,
		l.Images,
		l.Files,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert vehicle log: %w", err)
	}

	l.CreatedAt = now
	return nil
}

// ListByVehicleID 获取车辆的所有日志
func (r *VehicleLogRepository) ListByVehicleID(ctx context.Context, vehicleID string) ([]*models.VehicleLog, error) {
	query := `SELECT ` + logColumns + ` FROM vehicle_logs WHERE vehicle_id = $1 ORDER BY date DESC NULLS LAST, created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list vehicle logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.VehicleLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}

	return logs, nil
}

// CountByVehicleID 统计车辆日志数量
func (r *VehicleLogRepository) CountByVehicleID(ctx context.Context, vehicleID string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM vehicle_logs WHERE vehicle_id = $1`, vehicleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count vehicle logs: %w", err)
	}
	return count, nil
}

// SetOwnerByVehicleID 变更车辆全部日志的归属（交接步骤 2）
func (r *VehicleLogRepository) SetOwnerByVehicleID(ctx context.Context, vehicleID, userID string) error {
	query := `UPDATE vehicle_logs SET user_id = $1 WHERE vehicle_id = $2`
	_, err := r.db.Pool.Exec(ctx, query, userID, vehicleID)
	if err != nil {
		return fmt.Errorf("set log owner: %w", err)
	}
	return nil
}

// DeleteByVehicleID 删除车辆的全部日志
func (r *VehicleLogRepository) DeleteByVehicleID(ctx context.Context, vehicleID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM vehicle_logs WHERE vehicle_id = $1`, vehicleID)
	if err != nil {
		return fmt.Errorf("delete vehicle logs: %w", err)
	}
	return nil
}
