package history

import (
	"context"

	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for settlement transitions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transition *models.SettlementTransition) error
	ListBySettlementID(ctx context.Context, settlementID uuid.UUID) ([]models.SettlementTransition, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transition repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transition *models.SettlementTransition) error {
	return r.db.WithContext(ctx).Create(transition).Error
}

func (r *repository) ListBySettlementID(ctx context.Context, settlementID uuid.UUID) ([]models.SettlementTransition, error) {
	var rows []models.SettlementTransition
	if err := r.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
