package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"hikbridge/internal/models"
)

// DeviceRepository looks up access-control device configuration by IP.
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{db: db, logger: logger}
}

// GetByIP returns the device config, or nil when the IP is not registered.
// Disabled devices are returned as-is; the worker decides to skip them.
func (r *DeviceRepository) GetByIP(ctx context.Context, ip string) (*models.DeviceConfig, error) {
	query := `
		SELECT
			ip,
			COALESCE(username, 'admin'),
			COALESCE(password, ''),
			COALESCE(http_port, 80),
			COALESCE(https_port, 443),
			COALESCE(rtsp_port, 554),
			COALESCE(server_port, 8000),
			enabled
		FROM devices
		WHERE ip = $1
	`

	d := &models.DeviceConfig{}
	err := r.db.QueryRowContext(ctx, query, ip).Scan(
		&d.IP,
		&d.Username,
		&d.Password,
		&d.HTTPPort,
		&d.HTTPSPort,
		&d.RTSPPort,
		&d.ServerPort,
		&d.Enabled,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query device %s: %w", ip, err)
	}
	return d, nil
}
