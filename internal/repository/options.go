package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// OptionsRepository reads named configuration values.
type OptionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOptionsRepository(db *sql.DB, logger *zap.Logger) *OptionsRepository {
	return &OptionsRepository{db: db, logger: logger}
}

// GetValue returns the trimmed value for name, or "" when absent or empty.
func (r *OptionsRepository) GetValue(ctx context.Context, name string) (string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM config_options WHERE name = $1`, name,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query option %s: %w", name, err)
	}
	if !value.Valid {
		return "", nil
	}
	return strings.TrimSpace(value.String), nil
}
