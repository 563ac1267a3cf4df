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

// TransferRepository 转移意向数据仓库
type TransferRepository struct {
	db *DB
}

// NewTransferRepository 创建转移仓库
func NewTransferRepository(db *DB) *TransferRepository {
	return &TransferRepository{db: db}
}

const transferColumns = `id, kind, vehicle_id, registration, from_user_id, COALESCE(to_user_id, ''),
	state, step, moved_objects, failed_objects, COALESCE(last_error, ''), created_at, updated_at`

func scanTransfer(row pgx.Row) (*models.Transfer, error) {
	t := &models.Transfer{}
	err := row.Scan(
		&t.ID,
		&t.Kind,
		&t.VehicleID,
		&t.Registration,
		&t.FromUserID,
		&t.ToUserID,
		&t.State,
		&t.Step,
		&t.MovedObjects,
		&t.FailedObjects,
		&t.LastError,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	return t, nil
}

// Create 落盘一条转移意向
func (r *TransferRepository) Create(ctx context.Context, t *models.Transfer) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.State == "" {
		t.State = models.TransferStatePending
	}
	query := `
		INSERT INTO vehicle_transfers (id, kind, vehicle_id, registration, from_user_id, to_user_id, state, step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now()
	_, err := r.db.Pool.Exec(ctx, query,
		t.ID,
		t.Kind,
		t.VehicleID,
		t.Registration,
		t.FromUserID,
		t.ToUserID,
		t.State,
		t.Step,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// GetByID 通过 ID 获取转移意向
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*models.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM vehicle_transfers WHERE id = $1`
	return scanTransfer(r.db.Pool.QueryRow(ctx, query, id))
}

// UpdateProgress 推进意向的状态与步骤
func (r *TransferRepository) UpdateProgress(ctx context.Context, t *models.Transfer) error {
	query := `
		UPDATE vehicle_transfers
		SET state = $1, step = $2, moved_objects = $3, failed_objects = $4, last_error = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err := r.db.Pool.Exec(ctx, query,
		t.State,
		t.Step,
		t.MovedObjects,
		t.FailedObjects,
		t.LastError,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return nil
}

// ListUnfinished 列出未完成的意向（启动时恢复用）
func (r *TransferRepository) ListUnfinished(ctx context.Context) ([]*models.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM vehicle_transfers
		WHERE state NOT IN ($1, $2)
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, models.TransferStateCompleted, models.TransferStateFailed)
	if err != nil {
		return nil, fmt.Errorf("list unfinished transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}

	return transfers, nil
}
