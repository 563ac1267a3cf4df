package models

import "time"

// Vehicle 用户车辆
type Vehicle struct {
	ID            string     `json:"id"`
	Registration  string     `json:"registration"`
	UserID        string     `json:"user_id"`
	Make          string     `json:"make"`
	Model         string     `json:"model"`
	Year          int        `json:"year"`
	Color         string     `json:"color"`
	EngineSize    int        `json:"engine_size"` // 排量 (cc)
	Registered    *time.Time `json:"registered"`
	TaxDate       *time.Time `json:"tax_date"`
	MotDate       *time.Time `json:"mot_date"`
	InsuranceDate *time.Time `json:"insurance_date"`
	ServiceDate   *time.Time `json:"service_date"`
	Images        []string   `json:"images"`
	Description   string     `json:"description"`
	Nickname      string     `json:"nickname"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// VehicleDetails DVLA + MOT 合并后的查询结果
type VehicleDetails struct {
	Registration string     `json:"registration"`
	Make         string     `json:"make"`
	Model        string     `json:"model"`
	Year         int        `json:"year"`
	Color        string     `json:"color"`
	EngineSize   int        `json:"engine_size"`
	Registered   *time.Time `json:"registered"`
	TaxDate      *time.Time `json:"tax_date"`
	MotDate      *time.Time `json:"mot_date"`
}
