package models

import "time"

// 日志簿类目（九类，ID 固定）
const (
	CategoryService       = 1
	CategoryMaintenance   = 2
	CategoryRestoration   = 3
	CategoryModifications = 4
	CategoryAdmin         = 5
	CategoryInsurance     = 6
	CategoryTripsEvents   = 7
	CategoryWarranty      = 8
	CategoryOther         = 9
)

// CategoryNames 类目名称
var CategoryNames = map[int]string{
	CategoryService:       "Service",
	CategoryMaintenance:   "Maintenance",
	CategoryRestoration:   "Restoration",
	CategoryModifications: "Modifications",
	CategoryAdmin:         "Admin",
	CategoryInsurance:     "Insurance",
	CategoryTripsEvents:   "Trips & Events",
	CategoryWarranty:      "Warranty",
	CategoryOther:         "Other",
}

// ValidCategory 校验类目 ID
func ValidCategory(id int) bool {
	_, ok := CategoryNames[id]
	return ok
}

// VehicleLog 日志簿条目
type VehicleLog struct {
	ID          string     `json:"id"`
	VehicleID   string     `json:"vehicle_id"`
	UserID      string     `json:"user_id"`
	Category    int        `json:"category"`
	Title       string     `json:"title"`
	Date        *time.Time `json:"date"`
	Description string     `json:"description"`
	Notes       string     `json:"notes"`
	Cost        *float64   `json:"cost"`
	Images      []string   `json:"images"`
	Files       []string   `json:"files"`
	CreatedAt   time.Time  `json:"created_at"`
}
