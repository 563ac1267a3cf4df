package models

import "time"

// 转移类型
const (
	TransferKindHandover = "handover"
	TransferKindDelete   = "delete"
)

// 转移状态（与 state.Machine 的状态一致）
const (
	TransferStatePending        = "pending"
	TransferStateRecordsUpdated = "records_updated"
	TransferStateMovingObjects  = "moving_objects"
	TransferStateCompleted      = "completed"
	TransferStateFailed         = "failed"
)

// Transfer 车辆转移/删除意向记录
// 每次交接或删除都会先落一条意向，步骤推进时更新，
// 进程中断后可以从记录的步骤继续执行。
type Transfer struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	VehicleID     string    `json:"vehicle_id"`
	Registration  string    `json:"registration"`
	FromUserID    string    `json:"from_user_id"`
	ToUserID      string    `json:"to_user_id"` // 删除时为空
	State         string    `json:"state"`
	Step          int       `json:"step"`
	MovedObjects  int       `json:"moved_objects"`
	FailedObjects int       `json:"failed_objects"`
	LastError     string    `json:"last_error"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
