package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"hikbridge/internal/models"
)

// PersonRepository looks up person records. Read-only for the bridge.
type PersonRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPersonRepository(db *sql.DB, logger *zap.Logger) *PersonRepository {
	return &PersonRepository{db: db, logger: logger}
}

// GetByID returns the person record, or nil when no such person exists.
func (r *PersonRepository) GetByID(ctx context.Context, personID string) (*models.PersonRecord, error) {
	query := `
		SELECT person_id, COALESCE(given_name, ''), COALESCE(family_name, ''), valid_from, valid_to
		FROM persons
		WHERE person_id = $1
	`

	p := &models.PersonRecord{}
	err := r.db.QueryRowContext(ctx, query, personID).Scan(
		&p.ID,
		&p.GivenName,
		&p.FamilyName,
		&p.ValidFrom,
		&p.ValidTo,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query person %s: %w", personID, err)
	}
	return p, nil
}
