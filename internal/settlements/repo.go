package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ramp-settlement/pkg/db/models"
	"github.com/angelmondragon/ramp-settlement/pkg/enums"
	"github.com/angelmondragon/ramp-settlement/pkg/pagination"
)

// Repository persists settlement records. Status changes go through Update,
// which only applies when the row still matches the Guard.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	GetByReference(ctx context.Context, orderReference string) (*models.Settlement, error)
	GetByDepositHash(ctx context.Context, hash string) (*models.Settlement, error)
	Update(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Settlement, *pagination.Cursor, error)
	Stats(ctx context.Context, ownerID uuid.UUID) ([]StatsRow, error)
	ListPayoutCandidates(ctx context.Context, now time.Time, limit int) ([]models.Settlement, error)
	ListStaleTransfers(ctx context.Context, cutoff time.Time, limit int) ([]models.Settlement, error)
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Settlement, error)
}

// Guard is the compare half of a compare-and-set update. Empty fields are not checked.
type Guard struct {
	Statuses         []enums.SettlementStatus
	TransferStatuses []enums.TransferStatus
	PaymentStatus    enums.PaymentStatus
	ProofUnset       bool
	ClaimToken       string
}

// ListFilters narrows an owner listing.
type ListFilters struct {
	Status    *enums.SettlementStatus
	Direction *enums.SettlementDirection
	Asset     *enums.AssetType
}

// StatsRow aggregates an owner's settlements by status and asset.
type StatsRow struct {
	Direction   enums.SettlementDirection `json:"direction"`
	Status      enums.SettlementStatus    `json:"status"`
	AssetType   enums.AssetType           `json:"asset_type"`
	Count       int64                     `json:"count"`
	FiatTotal   decimal.Decimal           `json:"fiat_total"`
	TokenTotal  decimal.Decimal           `json:"token_total"`
	PayoutTotal decimal.Decimal           `json:"net_payout_total"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var row models.Settlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetByReference(ctx context.Context, orderReference string) (*models.Settlement, error) {
	var row models.Settlement
	if err := r.db.WithContext(ctx).Where("order_reference = ?", orderReference).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetByDepositHash(ctx context.Context, hash string) (*models.Settlement, error) {
	var row models.Settlement
	if err := r.db.WithContext(ctx).Where("deposit_tx_hash = ?", hash).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Settlement{}).Where("id = ?", id)
	if len(guard.Statuses) > 0 {
		query = query.Where("status IN ?", guard.Statuses)
	}
	if len(guard.TransferStatuses) > 0 {
		query = query.Where("transfer_status IN ?", guard.TransferStatuses)
	}
	if guard.PaymentStatus != "" {
		query = query.Where("payment_status = ?", guard.PaymentStatus)
	}
	if guard.ProofUnset {
		query = query.Where("payment_proof_id IS NULL")
	}
	if guard.ClaimToken != "" {
		query = query.Where("claim_token = ?", guard.ClaimToken)
	}

	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	result := query.UpdateColumns(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Settlement, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Settlement{}).Where("owner_id = ?", ownerID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Direction != nil {
		query = query.Where("direction = ?", *filters.Direction)
	}
	if filters.Asset != nil {
		query = query.Where("asset_type = ?", *filters.Asset)
	}

	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Settlement
	if err := query.Order("created_at DESC").Order("id DESC").Limit(pagination.FetchSize(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Split(rows, params.Limit, func(row models.Settlement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repository) Stats(ctx context.Context, ownerID uuid.UUID) ([]StatsRow, error) {
	var rows []StatsRow
	err := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Select(`direction, status, asset_type, COUNT(*) AS count,
			SUM(fiat_amount) AS fiat_total, SUM(token_amount) AS token_total, SUM(net_payout) AS payout_total`).
		Where("owner_id = ?", ownerID).
		Group("direction").Group("status").Group("asset_type").
		Order("direction").Order("status").Order("asset_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPayoutCandidates(ctx context.Context, now time.Time, limit int) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("direction = ?", enums.DirectionOffRamp).
		Where("(status = ? AND payout_due_at <= ?) OR status = ?",
			enums.SettlementStatusDepositVerified, now, enums.SettlementStatusPayoutInitiated).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStaleTransfers returns records whose transfer has not progressed since
// cutoff: claims left in flight, verified payments whose transfer never
// started, and timed out submissions that still have a hash to resolve.
func (r *repository) ListStaleTransfers(ctx context.Context, cutoff time.Time, limit int) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where(r.db.Where("transfer_status = ? AND claimed_at < ?", enums.TransferStatusInFlight, cutoff).
			Or("status = ? AND transfer_status = ? AND proof_verified_at < ?",
				enums.SettlementStatusPaymentVerified, enums.TransferStatusPending, cutoff).
			Or("status = ? AND transfer_status = ? AND transfer_hash IS NOT NULL AND simulated = ? AND failed_at < ?",
				enums.SettlementStatusFailed, enums.TransferStatusTimedOut, false, cutoff)).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.SettlementStatus{enums.SettlementStatusCreated, enums.SettlementStatusWithdrawalRequested}).
		Where("payment_proof_id IS NULL").
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
