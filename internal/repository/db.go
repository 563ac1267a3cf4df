package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateUsers,
		migrationCreateUserVehicles,
		migrationCreateVehicleLogs,
		migrationCreateVehicleTransfers,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL UNIQUE,
    username VARCHAR(15) UNIQUE,
    name VARCHAR(255),
    bio TEXT,
    avatar TEXT,
    public BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

const migrationCreateUserVehicles = `
CREATE TABLE IF NOT EXISTS user_vehicles (
    id UUID PRIMARY KEY,
    registration VARCHAR(10) NOT NULL,
    user_id TEXT NOT NULL,
    make VARCHAR(100),
    model VARCHAR(100),
    year INT,
    color VARCHAR(50),
    engine_size INT,
    registered TIMESTAMP WITH TIME ZONE,
    tax_date TIMESTAMP WITH TIME ZONE,
    mot_date TIMESTAMP WITH TIME ZONE,
    insurance_date TIMESTAMP WITH TIME ZONE,
    service_date TIMESTAMP WITH TIME ZONE,
    images TEXT[] NOT NULL DEFAULT '{}',
    description TEXT,
    nickname VARCHAR(100),
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    UNIQUE (user_id, registration)
);
CREATE INDEX IF NOT EXISTS idx_user_vehicles_user_id ON user_vehicles(user_id);
CREATE INDEX IF NOT EXISTS idx_user_vehicles_registration ON user_vehicles(registration);
`

const migrationCreateVehicleLogs = `
CREATE TABLE IF NOT EXISTS vehicle_logs (
    id UUID PRIMARY KEY,
    vehicle_id UUID NOT NULL,
    user_id TEXT NOT NULL,
    category SMALLINT NOT NULL,
    title VARCHAR(255) NOT NULL,
    date TIMESTAMP WITH TIME ZONE,
    description TEXT,
    notes TEXT,
    cost DOUBLE PRECISION,
    images TEXT[] NOT NULL DEFAULT '{}',
    files TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicle_logs_vehicle_id ON vehicle_logs(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_vehicle_logs_user_id ON vehicle_logs(user_id);
`

const migrationCreateVehicleTransfers = `
CREATE TABLE IF NOT EXISTS vehicle_transfers (
    id UUID PRIMARY KEY,
    kind VARCHAR(20) NOT NULL,
    vehicle_id UUID NOT NULL,
    registration VARCHAR(10) NOT NULL,
    from_user_id TEXT NOT NULL,
    to_user_id TEXT,
    state VARCHAR(20) NOT NULL,
    step INT NOT NULL DEFAULT 0,
    moved_objects INT NOT NULL DEFAULT 0,
    failed_objects INT NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicle_transfers_state ON vehicle_transfers(state);
CREATE INDEX IF NOT EXISTS idx_vehicle_transfers_vehicle_id ON vehicle_transfers(vehicle_id);
`
