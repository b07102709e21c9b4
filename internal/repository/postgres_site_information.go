package repository

import (
	"context"
	"database/sql"
	"fmt"

	"openelis-alert/internal/models"

	"go.uber.org/zap"
)

// PostgresSiteInformationRepository 站点配置仓库（PostgreSQL）
type PostgresSiteInformationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresSiteInformationRepository(db *sql.DB, logger *zap.Logger) *PostgresSiteInformationRepository {
	return &PostgresSiteInformationRepository{
		db:     db,
		logger: logger,
	}
}

var _ SiteInformationRepository = (*PostgresSiteInformationRepository)(nil)

func (r *PostgresSiteInformationRepository) GetByName(ctx context.Context, name string) (*models.SiteInformation, error) {
	query := `
		SELECT name, value, value_type
		FROM site_information
		WHERE name = $1
	`
	var info models.SiteInformation
	var value, valueType sql.NullString
	err := r.db.QueryRowContext(ctx, query, name).Scan(&info.Name, &value, &valueType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("site information %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get site information: %w", err)
	}
	info.Value = value.String
	info.ValueType = valueType.String
	return &info, nil
}

func (r *PostgresSiteInformationRepository) Save(ctx context.Context, info *models.SiteInformation) error {
	if info == nil || info.Name == "" {
		return fmt.Errorf("site information name is required")
	}

	query := `
		INSERT INTO site_information (name, value, value_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (name)
		DO UPDATE SET
			value = EXCLUDED.value,
			value_type = EXCLUDED.value_type
	`
	if _, err := r.db.ExecContext(ctx, query, info.Name, info.Value, info.ValueType); err != nil {
		return fmt.Errorf("failed to save site information: %w", err)
	}
	return nil
}
